// Package snapshot implements the walk that produces one new backup
// snapshot: depth-first, name-sorted, linking unchanged files against the
// previous snapshot and copying everything else. The recursive,
// per-entry dispatch (directory / symlink / file) replaces
// content-addressed deduplication with hard-link-against-previous
// semantics.
package snapshot

import (
	"fmt"
	"math/rand"
	"path"

	"github.com/djabi/snapkeep/internal/catalog"
	"github.com/djabi/snapkeep/internal/enginerr"
	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/vfs"
	"github.com/google/uuid"
)

const sentinelName = ".snapshot-complete"

// Stats counts what a build did, for the run summary.
type Stats struct {
	FilesTotal  int
	FilesLinked int
	FilesCopied int
	FilesFailed int
	DirsTotal   int
	BytesCopied int64
}

// Options configures one build.
type Options struct {
	SourceRoot string
	BackupRoot string
	// OSLabel is embedded in the new snapshot's directory name.
	OSLabel string

	// CopyProbability is p directly ("--copy-probability").
	CopyProbability float64
	// HardLinkCount, when > 0, derives p = 1/(HardLinkCount+1)
	// ("--hard-link-count"); it takes precedence over CopyProbability.
	HardLinkCount int
	// ForceCopy forces p = 1 ("--force-copy").
	ForceCopy bool

	// DeleteOnError removes the partial snapshot, hard-link-aware, if the
	// build aborts.
	DeleteOnError bool

	// FreeUpBytes is the pre-flight free-space target ("--free-up"); zero
	// disables the check.
	FreeUpBytes int64
	// PreFlight runs a retention pass to try to satisfy FreeUpBytes before
	// the build starts. It is optional; when nil, the pre-flight check is
	// skipped, and the build proceeds even if free space is still
	// insufficient afterward.
	PreFlight func() error
}

func copyProbability(o Options) float64 {
	switch {
	case o.ForceCopy:
		return 1
	case o.HardLinkCount > 0:
		return 1 / (float64(o.HardLinkCount) + 1)
	default:
		return o.CopyProbability
	}
}

// Builder runs one snapshot build against an engine.Context.
type Builder struct {
	ctx   *engine.Context
	opts  Options
	p     float64
	stats Stats
}

// New constructs a Builder.
func New(ctx *engine.Context, opts Options) *Builder {
	return &Builder{ctx: ctx, opts: opts, p: copyProbability(opts)}
}

// Build runs the full walk and returns the new snapshot's path and final
// stats. On a structurally fatal error the returned error is non-nil; any
// partial snapshot is left in place unless Options.DeleteOnError is set.
func (b *Builder) Build() (string, Stats, error) {
	if b.opts.FreeUpBytes > 0 {
		if free, err := b.ctx.FS.FreeSpace(b.opts.BackupRoot); err == nil && free < uint64(b.opts.FreeUpBytes) {
			if b.opts.PreFlight != nil {
				if err := b.opts.PreFlight(); err != nil {
					b.ctx.Log.Warn(fmt.Errorf("pre-flight retention pass: %w", err))
				}
			}
		}
	}

	prevPath := ""
	if prev, ok, err := catalog.Previous(b.ctx.FS, b.opts.BackupRoot); err != nil {
		return "", b.stats, enginerr.NewFatalIOError("enumerate previous snapshot", err)
	} else if ok {
		prevPath = prev.Path
	}

	dest, err := catalog.Allocate(b.ctx.FS, b.opts.BackupRoot, b.ctx.Now(), b.opts.OSLabel)
	if err != nil {
		return "", b.stats, enginerr.NewFatalIOError("allocate snapshot path", err)
	}

	// Build under a scratch name first so a crash mid-walk never leaves a
	// half-built directory sitting at the catalog name a later Previous
	// lookup would pick up. The suffix only needs to avoid collision with
	// a concurrent run; it never appears in the finished catalog.
	scratch := path.Join(b.opts.BackupRoot, "."+uuid.NewString())
	if err := b.ctx.FS.MkdirAll(scratch); err != nil {
		return "", b.stats, enginerr.NewFatalIOError("create snapshot root", err)
	}

	if _, err := b.walk(b.opts.SourceRoot, scratch, prevPath, ""); err != nil {
		if b.opts.DeleteOnError {
			_ = deleteRecursive(b.ctx.FS, scratch)
			_ = b.ctx.FS.RemoveEmptyDir(scratch)
		}
		return "", b.stats, err
	}

	if err := writeSentinel(b.ctx.FS, scratch); err != nil {
		b.ctx.Log.Warn(fmt.Errorf("write completion sentinel: %w", err))
	}

	if err := b.ctx.FS.MkdirAll(path.Dir(dest)); err != nil {
		return "", b.stats, enginerr.NewFatalIOError("create year bucket", err)
	}
	if err := b.ctx.FS.Rename(scratch, dest); err != nil {
		return "", b.stats, enginerr.NewFatalIOError("finalize snapshot", err)
	}
	return dest, b.stats, nil
}

// walk processes one source directory's children, creating the mirror
// directory in dstDir lazily (only once an included descendant needs it)
// so empty directories never appear in the snapshot. It returns whether
// anything was placed under dstDir.
func (b *Builder) walk(srcDir, dstDir, prevDir, relPath string) (bool, error) {
	entries, err := b.ctx.FS.ReadDir(srcDir)
	if err != nil {
		if relPath == "" {
			return false, enginerr.NewFatalIOError("read source root", err)
		}
		b.ctx.Log.Warn(enginerr.NewFileSkipError(srcDir, err))
		b.stats.FilesFailed++
		return false, nil
	}

	hasContent := false
	for _, e := range entries {
		childRel := e.Name
		if relPath != "" {
			childRel = path.Join(relPath, e.Name)
		}

		srcChild := path.Join(srcDir, e.Name)
		dstChild := path.Join(dstDir, e.Name)
		var prevChild string
		if prevDir != "" {
			prevChild = path.Join(prevDir, e.Name)
		}

		// The filter predicate applies per file, never per directory: a
		// directory is always descended so an include rule can still
		// resurface a file under an excluded ancestor. The lazy MkdirAll
		// below is what keeps a directory with no included descendant out
		// of the snapshot, not skipping the recursion here.
		if e.Kind == vfs.KindDirectory {
			sub, err := b.walk(srcChild, dstChild, prevChild, childRel)
			if err != nil {
				return hasContent, err
			}
			if sub {
				hasContent = true
				b.stats.DirsTotal++
			}
			continue
		}

		isReparsePoint := e.Kind == vfs.KindOther
		if !b.ctx.Filter.Included(childRel, isReparsePoint) {
			continue
		}

		switch e.Kind {
		case vfs.KindSymlink:
			target, err := b.ctx.FS.ReadLink(srcChild)
			if err != nil {
				b.ctx.Log.Warn(enginerr.NewFileSkipError(srcChild, err))
				b.stats.FilesFailed++
				continue
			}
			if err := b.ctx.FS.MkdirAll(dstDir); err != nil {
				return hasContent, enginerr.NewFatalIOError("create snapshot directory", err)
			}
			if err := b.ctx.FS.Symlink(target, dstChild); err != nil {
				b.ctx.Log.Warn(enginerr.NewFileSkipError(srcChild, err))
				b.stats.FilesFailed++
				continue
			}
			b.stats.FilesTotal++
			hasContent = true

		case vfs.KindFile:
			if err := b.ctx.FS.MkdirAll(dstDir); err != nil {
				return hasContent, enginerr.NewFatalIOError("create snapshot directory", err)
			}
			if err := b.placeFile(srcChild, dstChild, prevChild); err != nil {
				b.ctx.Log.Warn(enginerr.NewFileSkipError(srcChild, err))
				b.stats.FilesFailed++
				continue
			}
			b.stats.FilesTotal++
			hasContent = true
		}
	}
	return hasContent, nil
}

// placeFile implements the link-or-copy decision for one regular file.
func (b *Builder) placeFile(srcPath, dstPath, prevPath string) error {
	srcInfo, err := b.ctx.FS.Lstat(srcPath)
	if err != nil {
		return err
	}

	if prevPath != "" {
		if prevInfo, err := b.ctx.FS.Lstat(prevPath); err == nil && prevInfo.Kind == vfs.KindFile {
			equivalent, cerr := b.ctx.Comparator().Equivalent(b.ctx.FS, srcInfo, prevInfo, srcPath, prevPath)
			if cerr != nil {
				b.ctx.Log.Warn(cerr)
				equivalent = false
			}
			if equivalent && !b.recopyDice() {
				if err := b.ctx.FS.HardLink(prevPath, dstPath); err == nil {
					b.stats.FilesLinked++
					return nil
				}
				// link-miss: fall through to copy.
			}
		}
	}

	if err := vfs.CopyFile(b.ctx.FS, srcPath, dstPath); err != nil {
		return err
	}
	b.stats.FilesCopied++
	b.stats.BytesCopied += srcInfo.Size
	return nil
}

// recopyDice reports true when the re-copy dice says "copy anyway", to
// bound hard-link fan-out.
func (b *Builder) recopyDice() bool {
	if b.p <= 0 {
		return false
	}
	if b.p >= 1 {
		return true
	}
	r := b.ctx.Rand
	if r == nil {
		r = rand.New(rand.NewSource(1))
	}
	return r.Float64() < b.p
}

func writeSentinel(fs vfs.FS, dest string) error {
	w, err := fs.CreateNew(path.Join(dest, sentinelName))
	if err != nil {
		return err
	}
	return w.Close()
}

// deleteRecursive removes dir's contents bottom-up, unlinking each entry
// (rather than following symlinks or dereferencing hard links) so other
// snapshots that share an inode with a file under dir are unaffected.
func deleteRecursive(fs vfs.FS, dir string) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		if e.Kind == vfs.KindDirectory {
			if err := deleteRecursive(fs, p); err != nil {
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
	return nil
}
