// Package fstest provides an in-memory implementation of internal/vfs.FS for
// unit tests that need to exercise link/copy decisions, retention deletion,
// or integrity hashing without touching a real disk, in particular so hard
// link semantics can be asserted on directly (shared inode identity) without
// depending on filesystem-specific behavior.
package fstest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/djabi/snapkeep/internal/vfs"
)

type blob struct {
	data  []byte
	inode int64
}

type node struct {
	kind    vfs.Kind
	blob    *blob // files only; shared pointer == shared inode
	target  string
	mode    os.FileMode
	modTime time.Time
}

// MemFS is an in-memory vfs.FS. The zero value is not usable; use New.
type MemFS struct {
	mu        sync.Mutex
	nodes     map[string]*node
	nextInode int64
}

// New creates an empty in-memory filesystem, with "/" pre-created as the
// root directory.
func New() *MemFS {
	m := &MemFS{nodes: make(map[string]*node)}
	m.nodes["/"] = &node{kind: vfs.KindDirectory, modTime: time.Unix(0, 0)}
	return m
}

func clean(p string) string {
	p = filepathToSlash(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func (m *MemFS) parentOf(p string) string {
	d := path.Dir(p)
	return d
}

// WriteFile is a test helper that writes file content, creating all parent
// directories.
func (m *MemFS) WriteFile(p string, content []byte, mode os.FileMode, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.mkdirAllLocked(m.parentOf(p))
	m.nextInode++
	m.nodes[p] = &node{
		kind:    vfs.KindFile,
		blob:    &blob{data: append([]byte(nil), content...), inode: m.nextInode},
		mode:    mode,
		modTime: modTime.Truncate(time.Second),
	}
}

// Mkdir is a test helper to create a directory explicitly (empty
// directories don't otherwise need representing, but tests may want one
// present before any file is written under it).
func (m *MemFS) Mkdir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(clean(p))
}

func (m *MemFS) mkdirAllLocked(p string) {
	p = clean(p)
	if p == "/" {
		return
	}
	if n, ok := m.nodes[p]; ok && n.kind == vfs.KindDirectory {
		return
	}
	m.mkdirAllLocked(m.parentOf(p))
	m.nodes[p] = &node{kind: vfs.KindDirectory, modTime: time.Unix(0, 0)}
}

// Inode returns the shared content identity for a regular file, for tests
// asserting hard-link preservation.
func (m *MemFS) Inode(p string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(p)]
	if !ok || n.kind != vfs.KindFile {
		return 0, false
	}
	return n.blob.inode, true
}

func (m *MemFS) Stat(p string) (vfs.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statLocked(clean(p), true)
}

func (m *MemFS) Lstat(p string) (vfs.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statLocked(clean(p), false)
}

func (m *MemFS) statLocked(p string, follow bool) (vfs.Info, error) {
	n, ok := m.nodes[p]
	if !ok {
		return vfs.Info{}, os.ErrNotExist
	}
	if follow && n.kind == vfs.KindSymlink {
		target := n.target
		if !strings.HasPrefix(target, "/") {
			target = clean(path.Join(m.parentOf(p), target))
		}
		return m.statLocked(clean(target), true)
	}
	size := int64(0)
	if n.kind == vfs.KindFile {
		size = int64(len(n.blob.data))
	} else if n.kind == vfs.KindSymlink {
		size = int64(len(n.target))
	}
	return vfs.Info{
		Name:    path.Base(p),
		Kind:    n.kind,
		Size:    size,
		ModTime: n.modTime,
		Mode:    n.mode,
	}, nil
}

func (m *MemFS) ReadDir(p string) ([]vfs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if n, ok := m.nodes[p]; !ok || n.kind != vfs.KindDirectory {
		return nil, fmt.Errorf("not a directory: %s", p)
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	var out []vfs.DirEntry
	for candidate, n := range m.nodes {
		if candidate == p || !strings.HasPrefix(candidate, prefix) {
			continue
		}
		rest := strings.TrimPrefix(candidate, prefix)
		if strings.Contains(rest, "/") {
			continue // not a direct child
		}
		out = append(out, vfs.DirEntry{Name: rest, Kind: n.kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemFS) OpenRead(p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(p)]
	if !ok || n.kind != vfs.KindFile {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(n.blob.data)), nil
}

type memWriter struct {
	m    *MemFS
	path string
	buf  bytes.Buffer
	mode os.FileMode
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.mkdirAllLocked(w.m.parentOf(w.path))
	w.m.nextInode++
	w.m.nodes[w.path] = &node{
		kind:    vfs.KindFile,
		blob:    &blob{data: append([]byte(nil), w.buf.Bytes()...), inode: w.m.nextInode},
		mode:    w.mode,
		modTime: time.Now(),
	}
	return nil
}

func (m *MemFS) CreateNew(p string) (io.WriteCloser, error) {
	return &memWriter{m: m, path: clean(p), mode: 0o644}, nil
}

func (m *MemFS) MkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAllLocked(clean(p))
	return nil
}

func (m *MemFS) HardLink(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.nodes[clean(oldPath)]
	if !ok || src.kind != vfs.KindFile {
		return fmt.Errorf("hard link source not a file: %s", oldPath)
	}
	np := clean(newPath)
	m.mkdirAllLocked(m.parentOf(np))
	m.nodes[np] = &node{kind: vfs.KindFile, blob: src.blob, mode: src.mode, modTime: src.modTime}
	return nil
}

func (m *MemFS) Symlink(target, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	np := clean(newPath)
	m.mkdirAllLocked(m.parentOf(np))
	m.nodes[np] = &node{kind: vfs.KindSymlink, target: target, modTime: time.Now()}
	return nil
}

func (m *MemFS) ReadLink(p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(p)]
	if !ok || n.kind != vfs.KindSymlink {
		return "", fmt.Errorf("not a symlink: %s", p)
	}
	return n.target, nil
}

func (m *MemFS) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := clean(p)
	if _, ok := m.nodes[cp]; !ok {
		return os.ErrNotExist
	}
	delete(m.nodes, cp)
	return nil
}

func (m *MemFS) RemoveEmptyDir(p string) error {
	return m.Remove(p)
}

func (m *MemFS) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, np := clean(oldPath), clean(newPath)
	n, ok := m.nodes[op]
	if !ok {
		return os.ErrNotExist
	}
	m.mkdirAllLocked(m.parentOf(np))
	m.nodes[np] = n
	delete(m.nodes, op)

	prefix := op + "/"
	moved := make(map[string]*node)
	for candidate, cn := range m.nodes {
		if strings.HasPrefix(candidate, prefix) {
			moved[np+"/"+strings.TrimPrefix(candidate, prefix)] = cn
			delete(m.nodes, candidate)
		}
	}
	for p, cn := range moved {
		m.nodes[p] = cn
	}
	return nil
}

func (m *MemFS) Chtimes(p string, modTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(p)]
	if !ok {
		return os.ErrNotExist
	}
	n.modTime = modTime.Truncate(time.Second)
	return nil
}

func (m *MemFS) Chmod(p string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(p)]
	if !ok {
		return os.ErrNotExist
	}
	n.mode = mode
	return nil
}

func (m *MemFS) FreeSpace(p string) (uint64, error) {
	return 1 << 40, nil
}

func (m *MemFS) InodeID(p string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[clean(p)]
	if !ok || n.kind != vfs.KindFile {
		return 0, false
	}
	return uint64(n.blob.inode), true
}

var _ vfs.FS = (*MemFS)(nil)
