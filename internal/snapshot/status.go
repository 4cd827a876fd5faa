package snapshot

import (
	"path"

	"github.com/djabi/snapkeep/internal/catalog"
	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/staleness"
	"github.com/djabi/snapkeep/internal/vfs"
)

// State is the per-path status a status run reports, independent of whether
// a new snapshot ever actually gets built from it.
type State int

const (
	StateUnchanged State = iota // .
	StateNew                    // N
	StateModified               // M
	StateIgnored                // I
)

func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "."
	case StateNew:
		return "N"
	case StateModified:
		return "M"
	case StateIgnored:
		return "I"
	default:
		return "?"
	}
}

// Entry is one reported path and its status.
type Entry struct {
	RelPath string
	State   State
}

// Status compares sourceRoot against the most recent snapshot under
// backupRoot and the configured filter, without writing anything: it
// answers "what would the next backup do" for each file. showIgnored
// includes filter-excluded paths in the result (as StateIgnored);
// otherwise they're silently dropped, matching what a real build would do.
func Status(ctx *engine.Context, sourceRoot, backupRoot string, showIgnored bool) ([]Entry, error) {
	prevPath := ""
	if prev, ok, err := catalog.Previous(ctx.FS, backupRoot); err != nil {
		return nil, err
	} else if ok {
		prevPath = prev.Path
	}
	var out []Entry
	if err := statusWalk(ctx, sourceRoot, prevPath, "", showIgnored, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func statusWalk(ctx *engine.Context, srcDir, prevDir, relPath string, showIgnored bool, out *[]Entry) error {
	entries, err := ctx.FS.ReadDir(srcDir)
	if err != nil {
		if relPath == "" {
			return err
		}
		return nil
	}

	for _, e := range entries {
		childRel := e.Name
		if relPath != "" {
			childRel = path.Join(relPath, e.Name)
		}
		srcChild := path.Join(srcDir, e.Name)
		var prevChild string
		if prevDir != "" {
			prevChild = path.Join(prevDir, e.Name)
		}

		// As in the builder, the filter predicate never gates a directory
		// itself: a directory is always descended so a re-include rule
		// further down still surfaces, and only files/symlinks are ever
		// reported as ignored.
		if e.Kind == vfs.KindDirectory {
			if err := statusWalk(ctx, srcChild, prevChild, childRel, showIgnored, out); err != nil {
				return err
			}
			continue
		}

		if !ctx.Filter.Included(childRel, e.Kind == vfs.KindOther) {
			if showIgnored {
				*out = append(*out, Entry{RelPath: childRel, State: StateIgnored})
			}
			continue
		}

		*out = append(*out, Entry{RelPath: childRel, State: entryState(ctx, e.Kind, srcChild, prevChild)})
	}
	return nil
}

func entryState(ctx *engine.Context, kind vfs.Kind, srcPath, prevPath string) State {
	if prevPath == "" {
		return StateNew
	}
	prevInfo, err := ctx.FS.Lstat(prevPath)
	if err != nil || prevInfo.Kind != kind {
		return StateNew
	}

	switch kind {
	case vfs.KindFile:
		srcInfo, err := ctx.FS.Lstat(srcPath)
		if err != nil {
			return StateModified
		}
		equivalent, err := ctx.Comparator().Equivalent(ctx.FS, srcInfo, prevInfo, srcPath, prevPath)
		if err != nil || !equivalent {
			return StateModified
		}
		return StateUnchanged

	case vfs.KindSymlink:
		target, terr := ctx.FS.ReadLink(srcPath)
		prevTarget, perr := ctx.FS.ReadLink(prevPath)
		if terr != nil || perr != nil || !staleness.SymlinksEquivalent(target, prevTarget) {
			return StateModified
		}
		return StateUnchanged

	default:
		return StateNew
	}
}
