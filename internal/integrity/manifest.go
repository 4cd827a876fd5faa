// Package integrity implements checksum manifests and the verify/
// find-missing operations, hashing with SHA3-256 via
// golang.org/x/crypto/sha3 rather than content-addressing MD5.
package integrity

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/djabi/snapkeep/internal/enginerr"
	"github.com/djabi/snapkeep/internal/vfs"
	"golang.org/x/crypto/sha3"
)

const manifestSentinel = ".snapshot-complete"

var manifestNamePattern = regexp.MustCompile(`^checksums(\.[0-9]+)?\.sha3$`)

// isManifestName reports whether name is a checksum manifest, so walkers
// can exclude it from the files they hash or list.
func isManifestName(name string) bool {
	return manifestNamePattern.MatchString(name)
}

// SentinelName is the completion marker written at a snapshot's root once
// its build finishes; it never appears inside a source tree's own content.
const SentinelName = manifestSentinel

// IsManifestName reports whether name is a checksum manifest file, for
// callers outside this package that need to skip them the way
// walkRegularFiles does (manifests live only at a snapshot's root).
func IsManifestName(name string) bool {
	return isManifestName(name)
}

// hashFile computes the lowercase-hex SHA3-256 digest of a file's content.
func hashFile(fs vfs.FS, path string) (string, error) {
	r, err := fs.OpenRead(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha3.New256()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// NextManifestName picks "checksums.sha3" if free, else the first free
// "checksums.<N>.sha3" with N >= 1.
func NextManifestName(fs vfs.FS, snapshotRoot string) (string, error) {
	if _, err := fs.Lstat(path.Join(snapshotRoot, "checksums.sha3")); err != nil {
		return "checksums.sha3", nil
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("checksums.%d.sha3", n)
		if _, err := fs.Lstat(path.Join(snapshotRoot, name)); err != nil {
			return name, nil
		}
	}
}

// walkRegularFiles visits every regular file under root (depth-first,
// name-sorted, skipping symlinks and manifest files), calling visit with
// the file's forward-slash path relative to root.
func walkRegularFiles(fs vfs.FS, root, relPrefix string, visit func(relPath, fullPath string) error) error {
	entries, err := fs.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if relPrefix == "" && isManifestName(e.Name) {
			continue
		}
		if e.Name == manifestSentinel {
			continue
		}
		rel := e.Name
		if relPrefix != "" {
			rel = relPrefix + "/" + e.Name
		}
		full := path.Join(root, e.Name)
		switch e.Kind {
		case vfs.KindDirectory:
			if err := walkRegularFiles(fs, full, rel, visit); err != nil {
				return err
			}
		case vfs.KindFile:
			if err := visit(rel, full); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateManifest hashes every regular file in snapshotRoot and writes the
// result to the next available "checksums[.N].sha3" name, returning the
// manifest's path.
func CreateManifest(fs vfs.FS, snapshotRoot string) (string, error) {
	var lines []string
	err := walkRegularFiles(fs, snapshotRoot, "", func(rel, full string) error {
		hash, err := hashFile(fs, full)
		if err != nil {
			return enginerr.NewFileSkipError(full, err)
		}
		lines = append(lines, rel+" "+hash)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(lines)

	name, err := NextManifestName(fs, snapshotRoot)
	if err != nil {
		return "", err
	}
	manifestPath := path.Join(snapshotRoot, name)
	w, err := fs.CreateNew(manifestPath)
	if err != nil {
		return "", err
	}
	defer w.Close()
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return "", err
		}
	}
	return manifestPath, nil
}

// readManifest parses a manifest file into relPath -> hash.
func readManifest(fs vfs.FS, manifestPath string) (map[string]string, error) {
	r, err := fs.OpenRead(manifestPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx < 0 {
			continue
		}
		out[line[:idx]] = line[idx+1:]
	}
	return out, scanner.Err()
}

// VerifyManifest re-hashes every file in snapshotRoot and returns the
// relative paths whose hash doesn't match the stored manifest.
func VerifyManifest(fs vfs.FS, snapshotRoot, manifestName string) ([]string, error) {
	want, err := readManifest(fs, path.Join(snapshotRoot, manifestName))
	if err != nil {
		return nil, err
	}

	var mismatches []string
	err = walkRegularFiles(fs, snapshotRoot, "", func(rel, full string) error {
		got, herr := hashFile(fs, full)
		if herr != nil {
			mismatches = append(mismatches, rel)
			return nil
		}
		if expect, ok := want[rel]; !ok || expect != got {
			mismatches = append(mismatches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(mismatches)
	return mismatches, nil
}

// HasAnyManifest reports whether snapshotRoot has a checksum manifest.
func HasAnyManifest(fs vfs.FS, snapshotRoot string) (string, bool) {
	entries, err := fs.ReadDir(snapshotRoot)
	if err != nil {
		return "", false
	}
	best := ""
	for _, e := range entries {
		if e.Kind == vfs.KindFile && isManifestName(e.Name) {
			if best == "" || e.Name < best {
				best = e.Name
			}
		}
	}
	return best, best != ""
}

// YoungerThanExists reports whether any manifest mtime under snapshotRoot
// is at or after cutoff.
func YoungerThanExists(fs vfs.FS, snapshotRoot string, cutoff time.Time) bool {
	entries, err := fs.ReadDir(snapshotRoot)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Kind != vfs.KindFile || !isManifestName(e.Name) {
			continue
		}
		info, err := fs.Lstat(path.Join(snapshotRoot, e.Name))
		if err != nil {
			continue
		}
		if !info.ModTime.Before(cutoff) {
			return true
		}
	}
	return false
}
