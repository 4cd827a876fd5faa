// Package recovery implements single-path recovery, directory listing,
// full restore, purge, and move-backup. Recovery and restore copy rather
// than link; move-backup is the one operation that creates new hard
// links, re-deriving them from InodeID equality across the moved range.
package recovery

import (
	"path"
	"sort"
	"strconv"

	"github.com/djabi/snapkeep/internal/catalog"
	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/integrity"
	"github.com/djabi/snapkeep/internal/vfs"
)

// FindOccurrences returns every snapshot (ascending) in which relPath
// exists as a regular file.
func FindOccurrences(fs vfs.FS, backupRoot, relPath string) ([]catalog.Snapshot, error) {
	snapshots, err := catalog.Enumerate(fs, backupRoot)
	if err != nil {
		return nil, err
	}
	var out []catalog.Snapshot
	for _, s := range snapshots {
		info, err := fs.Lstat(path.Join(s.Path, relPath))
		if err != nil || info.Kind != vfs.KindFile {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// DistinctVersions filters occurrences down to the ones whose inode
// differs from their immediate predecessor's: the versions actually
// worth offering for recovery, skipping runs that are hard-linked
// together and therefore byte-identical.
func DistinctVersions(fs vfs.FS, occurrences []catalog.Snapshot, relPath string) []catalog.Snapshot {
	var out []catalog.Snapshot
	var lastID uint64
	haveLast := false
	for _, s := range occurrences {
		id, ok := fs.InodeID(path.Join(s.Path, relPath))
		if !haveLast || !ok || id != lastID {
			out = append(out, s)
		}
		if ok {
			lastID, haveLast = id, true
		}
	}
	return out
}

// uniqueName mirrors the "<stem>.<N>.<ext>" collision-avoidance rule used
// both for recovered files and report files.
func uniqueName(fs vfs.FS, dir, base string) (string, error) {
	if _, err := fs.Lstat(path.Join(dir, base)); err != nil {
		return base, nil
	}
	ext := path.Ext(base)
	stem := base[:len(base)-len(ext)]
	for n := 1; ; n++ {
		candidate := stem + "." + strconv.Itoa(n) + ext
		if _, err := fs.Lstat(path.Join(dir, candidate)); err != nil {
			return candidate, nil
		}
	}
}

// Recover copies the chosen snapshot's version of relPath into the
// directory containing the live path, renaming on collision.
func Recover(fs vfs.FS, chosen catalog.Snapshot, relPath, liveParentDir string) (string, error) {
	base := path.Base(relPath)
	name, err := uniqueName(fs, liveParentDir, base)
	if err != nil {
		return "", err
	}
	dest := path.Join(liveParentDir, name)
	if err := vfs.CopyFile(fs, path.Join(chosen.Path, relPath), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ListPaths returns every distinct relative path ever backed up under
// dirRelPath across all snapshots, for the "--list DIR" menu.
func ListPaths(fs vfs.FS, backupRoot, dirRelPath string) ([]string, error) {
	snapshots, err := catalog.Enumerate(fs, backupRoot)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, s := range snapshots {
		root := path.Join(s.Path, dirRelPath)
		_ = walkFiles(fs, root, dirRelPath, func(rel string) error {
			seen[rel] = true
			return nil
		})
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

func walkFiles(fs vfs.FS, dir, rel string, visit func(rel string) error) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childRel := e.Name
		if rel != "" {
			childRel = rel + "/" + e.Name
		}
		childPath := path.Join(dir, e.Name)
		if e.Kind == vfs.KindDirectory {
			if err := walkFiles(fs, childPath, childRel, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(childRel); err != nil {
			return err
		}
	}
	return nil
}

// Restore copies a snapshot's content into dest (never hard-linking). When
// deleteExtra is true, anything in dest with no counterpart in the
// snapshot is removed afterward.
func Restore(fs vfs.FS, snapshot catalog.Snapshot, dest string, deleteExtra bool) error {
	if err := fs.MkdirAll(dest); err != nil {
		return err
	}
	if err := copyTree(fs, snapshot.Path, dest, true); err != nil {
		return err
	}
	if deleteExtra {
		return pruneExtra(fs, snapshot.Path, dest)
	}
	return nil
}

// copyTree mirrors the filtered content of a snapshot, leaving out the
// engine's own bookkeeping files (the completion sentinel everywhere, and
// checksum manifests at the snapshot root, matching where the builder
// actually places them) so a restore carries only what was backed up.
func copyTree(fs vfs.FS, src, dst string, isRoot bool) error {
	entries, err := fs.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == integrity.SentinelName || (isRoot && integrity.IsManifestName(e.Name)) {
			continue
		}
		srcChild := path.Join(src, e.Name)
		dstChild := path.Join(dst, e.Name)
		switch e.Kind {
		case vfs.KindDirectory:
			if err := fs.MkdirAll(dstChild); err != nil {
				return err
			}
			if err := copyTree(fs, srcChild, dstChild, false); err != nil {
				return err
			}
		case vfs.KindSymlink:
			target, err := fs.ReadLink(srcChild)
			if err != nil {
				return err
			}
			if err := fs.Symlink(target, dstChild); err != nil {
				return err
			}
		case vfs.KindFile:
			if err := vfs.CopyFile(fs, srcChild, dstChild); err != nil {
				return err
			}
		}
	}
	return nil
}

// pruneExtra removes entries under dst that have no counterpart under src.
// An extra directory is removed with its whole subtree, bottom-up; a
// directory present on both sides is recursed into and kept.
func pruneExtra(fs vfs.FS, src, dst string) error {
	entries, err := fs.ReadDir(dst)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcChild := path.Join(src, e.Name)
		dstChild := path.Join(dst, e.Name)
		if _, err := fs.Lstat(srcChild); err != nil {
			if e.Kind == vfs.KindDirectory {
				_ = removeAll(fs, dstChild)
			} else {
				_ = fs.Remove(dstChild)
			}
			continue
		}
		if e.Kind == vfs.KindDirectory {
			if err := pruneExtra(fs, srcChild, dstChild); err != nil {
				return err
			}
		}
	}
	return nil
}

func removeAll(fs vfs.FS, dir string) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		if e.Kind == vfs.KindDirectory {
			if err := removeAll(fs, p); err != nil {
				return err
			}
			if err := fs.RemoveEmptyDir(p); err != nil {
				return err
			}
			continue
		}
		if err := fs.Remove(p); err != nil {
			return err
		}
	}
	return fs.RemoveEmptyDir(dir)
}

// Purge removes every occurrence of relPath across every snapshot under
// backupRoot, returning the snapshots it actually removed something from.
func Purge(fs vfs.FS, backupRoot, relPath string) ([]catalog.Snapshot, error) {
	snapshots, err := catalog.Enumerate(fs, backupRoot)
	if err != nil {
		return nil, err
	}
	var affected []catalog.Snapshot
	for _, s := range snapshots {
		full := path.Join(s.Path, relPath)
		info, err := fs.Lstat(full)
		if err != nil {
			continue
		}
		if info.Kind == vfs.KindDirectory {
			if err := removeAll(fs, full); err != nil {
				return affected, err
			}
		} else {
			if err := fs.Remove(full); err != nil {
				return affected, err
			}
		}
		affected = append(affected, s)
	}
	return affected, nil
}

// MoveBackup re-materializes the given snapshots (ascending, a contiguous
// catalog range) under destRoot, preserving hard-link sharing between
// consecutive snapshots within the range by re-deriving links from
// InodeID equality rather than copying twice.
func MoveBackup(ctx *engine.Context, snapshots []catalog.Snapshot, destRoot string) error {
	var prevOriginal, prevDest string
	for _, s := range snapshots {
		destSnap := path.Join(destRoot, s.Time.Format("2006"), s.Name)
		if err := ctx.FS.MkdirAll(destSnap); err != nil {
			return err
		}
		if err := moveTree(ctx.FS, s.Path, destSnap, prevOriginal, prevDest); err != nil {
			return err
		}
		prevOriginal, prevDest = s.Path, destSnap
	}
	return nil
}

func moveTree(fs vfs.FS, srcDir, dstDir, prevOriginalDir, prevDestDir string) error {
	entries, err := fs.ReadDir(srcDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcChild := path.Join(srcDir, e.Name)
		dstChild := path.Join(dstDir, e.Name)
		var prevOrigChild, prevDestChild string
		if prevOriginalDir != "" {
			prevOrigChild = path.Join(prevOriginalDir, e.Name)
			prevDestChild = path.Join(prevDestDir, e.Name)
		}

		switch e.Kind {
		case vfs.KindDirectory:
			if err := fs.MkdirAll(dstChild); err != nil {
				return err
			}
			if err := moveTree(fs, srcChild, dstChild, prevOrigChild, prevDestChild); err != nil {
				return err
			}

		case vfs.KindSymlink:
			target, err := fs.ReadLink(srcChild)
			if err != nil {
				return err
			}
			if err := fs.Symlink(target, dstChild); err != nil {
				return err
			}

		case vfs.KindFile:
			linked := false
			if prevOrigChild != "" {
				if id1, ok1 := fs.InodeID(srcChild); ok1 {
					if id2, ok2 := fs.InodeID(prevOrigChild); ok2 && id1 == id2 {
						if err := fs.HardLink(prevDestChild, dstChild); err == nil {
							linked = true
						}
					}
				}
			}
			if !linked {
				if err := vfs.CopyFile(fs, srcChild, dstChild); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
