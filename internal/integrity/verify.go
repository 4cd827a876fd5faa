package integrity

import (
	"io"
	"path"
	"sort"
	"strconv"

	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/staleness"
	"github.com/djabi/snapkeep/internal/vfs"
)

// LiveVerifyResult partitions the source tree against the latest snapshot.
type LiveVerifyResult struct {
	Matching    []string
	Mismatching []string
	Errored     []string
}

// LiveVerify walks sourceRoot (through the engine's filter) and compares
// each included path against its counterpart in snapshotRoot.
func LiveVerify(ctx *engine.Context, sourceRoot, snapshotRoot string) (LiveVerifyResult, error) {
	var result LiveVerifyResult
	err := walkIncluded(ctx, sourceRoot, "", func(rel, srcPath string, kind vfs.Kind) error {
		counterpart := path.Join(snapshotRoot, rel)
		cpInfo, err := ctx.FS.Lstat(counterpart)
		if err != nil {
			result.Errored = append(result.Errored, rel)
			return nil
		}

		switch kind {
		case vfs.KindSymlink:
			target, terr := ctx.FS.ReadLink(srcPath)
			if terr != nil || cpInfo.Kind != vfs.KindSymlink {
				result.Errored = append(result.Errored, rel)
				return nil
			}
			cpTarget, terr := ctx.FS.ReadLink(counterpart)
			if terr != nil {
				result.Errored = append(result.Errored, rel)
				return nil
			}
			if staleness.SymlinksEquivalent(target, cpTarget) {
				result.Matching = append(result.Matching, rel)
			} else {
				result.Mismatching = append(result.Mismatching, rel)
			}

		case vfs.KindFile:
			if cpInfo.Kind != vfs.KindFile {
				result.Errored = append(result.Errored, rel)
				return nil
			}
			srcInfo, serr := ctx.FS.Lstat(srcPath)
			if serr != nil {
				result.Errored = append(result.Errored, rel)
				return nil
			}
			equal, eerr := staleness.Deep{}.Equivalent(ctx.FS, srcInfo, cpInfo, srcPath, counterpart)
			if eerr != nil {
				result.Errored = append(result.Errored, rel)
				return nil
			}
			if equal {
				result.Matching = append(result.Matching, rel)
			} else {
				result.Mismatching = append(result.Mismatching, rel)
			}
		}
		return nil
	})
	return result, err
}

// walkIncluded visits every filter-included file and symlink under root
// (directories are never visited themselves).
func walkIncluded(ctx *engine.Context, dir, relPrefix string, visit func(rel, fullPath string, kind vfs.Kind) error) error {
	entries, err := ctx.FS.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := e.Name
		if relPrefix != "" {
			rel = relPrefix + "/" + e.Name
		}
		full := path.Join(dir, e.Name)

		// The filter predicate applies per file, never per directory: a
		// directory is always descended so an include rule can still
		// resurface a file under an excluded ancestor.
		if e.Kind == vfs.KindDirectory {
			if err := walkIncluded(ctx, full, rel, visit); err != nil {
				return err
			}
			continue
		}
		if !ctx.Filter.Included(rel, e.Kind == vfs.KindOther) {
			continue
		}
		if e.Kind == vfs.KindFile || e.Kind == vfs.KindSymlink {
			if err := visit(rel, full, e.Kind); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindMissing computes every relative path ever present in any snapshot
// under backupRoot (after the filter, at build time) that is no longer
// present in sourceRoot's current filtered contents.
func FindMissing(ctx *engine.Context, backupRoot, sourceRoot string, snapshotPaths []string) ([]string, error) {
	everPresent := make(map[string]bool)
	for _, snap := range snapshotPaths {
		if err := walkRegularFiles(ctx.FS, snap, "", func(rel, _ string) error {
			everPresent[rel] = true
			return nil
		}); err != nil {
			return nil, err
		}
	}

	current := make(map[string]bool)
	err := walkIncluded(ctx, sourceRoot, "", func(rel, _ string, kind vfs.Kind) error {
		if kind == vfs.KindFile {
			current[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var missing []string
	for rel := range everPresent {
		if !current[rel] {
			missing = append(missing, rel)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// WriteListFile writes one path per line to path, used for the live-verify
// and find-missing report files.
func WriteListFile(fs vfs.FS, filePath string, lines []string) error {
	w, err := fs.CreateNew(filePath)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// UniqueName returns base if path.Join(dir, base) doesn't exist, else the
// first available "<stem>.<N><ext>" (or "<base>.<N>" if base has no
// extension), N >= 1.
func UniqueName(fs vfs.FS, dir, base string) (string, error) {
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
