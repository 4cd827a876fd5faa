package vfs

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// OS is the real filesystem, backed by the os package.
type OS struct{}

// New returns the real, disk-backed FS implementation.
func New() FS { return OS{} }

func infoFrom(path string, fi os.FileInfo) Info {
	kind := KindOther
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		kind = KindSymlink
	case fi.IsDir():
		kind = KindDirectory
	case fi.Mode().IsRegular():
		kind = KindFile
	}
	return Info{
		Name:    filepath.Base(path),
		Kind:    kind,
		Size:    fi.Size(),
		ModTime: fi.ModTime().Truncate(time.Second),
		Mode:    fi.Mode(),
	}
}

func (OS) Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return infoFrom(path, fi), nil
}

func (OS) Lstat(path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Info{}, err
	}
	return infoFrom(path, fi), nil
}

func (OS) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		kind := KindOther
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			kind = KindSymlink
		case info.IsDir():
			kind = KindDirectory
		case info.Mode().IsRegular():
			kind = KindFile
		}
		out = append(out, DirEntry{Name: e.Name(), Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (OS) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OS) CreateNew(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (OS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (OS) HardLink(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return err
	}
	return os.Link(oldPath, newPath)
}

func (OS) Symlink(target, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, newPath)
}

func (OS) ReadLink(path string) (string, error) {
	return os.Readlink(path)
}

func (OS) Remove(path string) error {
	return os.Remove(path)
}

func (OS) RemoveEmptyDir(path string) error {
	return os.Remove(path)
}

func (OS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OS) Chtimes(path string, modTime time.Time) error {
	return os.Chtimes(path, modTime, modTime)
}

func (OS) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (OS) InodeID(path string) (uint64, bool) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, false
	}
	return inodeOf(fi)
}
