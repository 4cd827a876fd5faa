package filter

import (
	"path"

	"github.com/djabi/snapkeep/internal/vfs"
)

// PreviewEntry is one path's filter verdict during a dry run.
type PreviewEntry struct {
	RelPath  string
	Included bool
}

// Preview walks sourceRoot and evaluates f.Included against every file and
// symlink found (directories are never evaluated, matching how a real
// backup run treats the predicate as per-file), without touching
// backupRoot or writing anything. Call f.UnusedRules after Preview to
// report rules that never matched.
func Preview(fs vfs.FS, sourceRoot string, f *Filter) ([]PreviewEntry, error) {
	var out []PreviewEntry
	if err := previewWalk(fs, sourceRoot, "", f, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func previewWalk(fs vfs.FS, dir, relPrefix string, f *Filter, out *[]PreviewEntry) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := e.Name
		if relPrefix != "" {
			rel = relPrefix + "/" + e.Name
		}
		if e.Kind == vfs.KindDirectory {
			if err := previewWalk(fs, path.Join(dir, e.Name), rel, f, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, PreviewEntry{
			RelPath:  rel,
			Included: f.Included(rel, e.Kind == vfs.KindOther),
		})
	}
	return nil
}
