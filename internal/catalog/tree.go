package catalog

import (
	"path"
	"sort"

	"github.com/djabi/snapkeep/internal/integrity"
	"github.com/djabi/snapkeep/internal/vfs"
)

// TreeEntry is one line of a recursive snapshot listing.
type TreeEntry struct {
	RelPath string
	Depth   int
	Kind    vfs.Kind
}

// Tree lists every entry under a snapshot's root, depth-first and
// name-sorted, leaving out the engine's own bookkeeping files (the
// completion sentinel, and checksum manifests at the root) so the listing
// matches what was actually backed up.
func Tree(fs vfs.FS, snapshotRoot string) ([]TreeEntry, error) {
	var out []TreeEntry
	if err := treeWalk(fs, snapshotRoot, "", 0, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func treeWalk(fs vfs.FS, dir, relPrefix string, depth int, isRoot bool, out *[]TreeEntry) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, len(entries))
	byName := make(map[string]vfs.DirEntry, len(entries))
	for i, e := range entries {
		names[i] = e.Name
		byName[e.Name] = e
	}
	sort.Strings(names)

	for _, name := range names {
		e := byName[name]
		if e.Name == integrity.SentinelName || (isRoot && integrity.IsManifestName(e.Name)) {
			continue
		}
		rel := e.Name
		if relPrefix != "" {
			rel = relPrefix + "/" + e.Name
		}
		*out = append(*out, TreeEntry{RelPath: rel, Depth: depth, Kind: e.Kind})
		if e.Kind == vfs.KindDirectory {
			if err := treeWalk(fs, path.Join(dir, e.Name), rel, depth+1, false, out); err != nil {
				return err
			}
		}
	}
	return nil
}
