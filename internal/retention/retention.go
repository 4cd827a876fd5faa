// Package retention implements the three independent deletion policies
// (age cutoff, free-space target, tiered thinning), composed with AND
// semantics, and the hard-link-aware deletion itself. The
// never-delete-newest invariant and oldest-first ordering are enforced in
// Plan, so Execute only ever removes what Plan returned.
package retention

import (
	"path"
	"time"

	"github.com/djabi/snapkeep/internal/catalog"
	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/timespan"
	"github.com/djabi/snapkeep/internal/vfs"
)

// Policy bundles the retention options for one run; a nil/zero field
// leaves that policy inactive.
type Policy struct {
	DeleteAfter *timespan.Span // age cutoff ("--delete-after")

	FreeUpBytes int64 // free-space target ("--free-up")

	// Tiered thinning thresholds ("--keep-weekly-after A",
	// "--keep-monthly-after B", "--keep-yearly-after C"); caller is
	// responsible for enforcing A <= B <= C when more than one is set.
	KeepWeeklyAfter  *timespan.Span
	KeepMonthlyAfter *timespan.Span
	KeepYearlyAfter  *timespan.Span

	MaxDeletions int // 0 = unlimited
}

func (p Policy) tieringActive() bool {
	return p.KeepWeeklyAfter != nil || p.KeepMonthlyAfter != nil || p.KeepYearlyAfter != nil
}

func (p Policy) active() bool {
	return p.DeleteAfter != nil || p.FreeUpBytes > 0 || p.tieringActive()
}

// Plan computes which snapshots under root would be deleted: the
// intersection of every active policy's deletable set, oldest-first,
// capped at MaxDeletions, never including the newest snapshot.
func Plan(ctx *engine.Context, root string, p Policy) ([]catalog.Snapshot, error) {
	if !p.active() {
		return nil, nil
	}

	snapshots, err := catalog.Enumerate(ctx.FS, root)
	if err != nil {
		return nil, err
	}
	if len(snapshots) <= 1 {
		return nil, nil // the sole snapshot, if any, is the newest: never delete it
	}
	candidates := snapshots[:len(snapshots)-1]

	now := ctx.Now()
	var sets []map[string]bool

	if p.DeleteAfter != nil {
		cutoff := p.DeleteAfter.Before(now)
		set := make(map[string]bool)
		for _, s := range candidates {
			if s.Time.Before(cutoff) {
				set[s.Path] = true
			}
		}
		sets = append(sets, set)
	}

	if p.FreeUpBytes > 0 {
		sets = append(sets, freeSpaceSet(ctx.FS, root, candidates, p.FreeUpBytes))
	}

	if p.tieringActive() {
		sets = append(sets, tierSet(candidates, now, p))
	}

	var planned []catalog.Snapshot
	for _, s := range candidates {
		if inAllSets(s.Path, sets) {
			planned = append(planned, s)
		}
	}

	if p.MaxDeletions > 0 && len(planned) > p.MaxDeletions {
		planned = planned[:p.MaxDeletions]
	}
	return planned, nil
}

func inAllSets(key string, sets []map[string]bool) bool {
	for _, set := range sets {
		if !set[key] {
			return false
		}
	}
	return true
}

func freeSpaceSet(fs vfs.FS, root string, candidates []catalog.Snapshot, target int64) map[string]bool {
	set := make(map[string]bool)
	free, err := fs.FreeSpace(root)
	if err != nil || free >= uint64(target) {
		return set
	}
	needed := uint64(target) - free
	var freed uint64
	for _, s := range candidates {
		if freed >= needed {
			break
		}
		size, err := estimateSize(fs, s.Path)
		if err != nil {
			continue
		}
		set[s.Path] = true
		freed += uint64(size)
	}
	return set
}

func tierSet(candidates []catalog.Snapshot, now time.Time, p Policy) map[string]bool {
	var yearlyCutoff, monthlyCutoff, weeklyCutoff time.Time
	if p.KeepYearlyAfter != nil {
		yearlyCutoff = p.KeepYearlyAfter.Before(now)
	}
	if p.KeepMonthlyAfter != nil {
		monthlyCutoff = p.KeepMonthlyAfter.Before(now)
	}
	if p.KeepWeeklyAfter != nil {
		weeklyCutoff = p.KeepWeeklyAfter.Before(now)
	}

	var yearly, monthly, weekly []catalog.Snapshot
	for _, s := range candidates {
		switch {
		case p.KeepYearlyAfter != nil && s.Time.Before(yearlyCutoff):
			yearly = append(yearly, s)
		case p.KeepMonthlyAfter != nil && s.Time.Before(monthlyCutoff):
			monthly = append(monthly, s)
		case p.KeepWeeklyAfter != nil && s.Time.Before(weeklyCutoff):
			weekly = append(weekly, s)
		}
	}

	out := make(map[string]bool)
	for key := range thinTier(yearly, yearlyKey) {
		out[key] = true
	}
	for key := range thinTier(monthly, monthlyKey) {
		out[key] = true
	}
	for key := range thinTier(weekly, weeklyKey) {
		out[key] = true
	}
	return out
}

// estimateSize sums regular-file sizes under a snapshot, as an estimate of
// the space it occupies. Because unchanged files are hard-linked against
// earlier snapshots, this overstates bytes actually freed by deleting a
// single snapshot when its content is still referenced elsewhere; it is
// used only to decide how many oldest snapshots to queue for deletion; the
// actual freed space is whatever the filesystem reports after Execute.
func estimateSize(fs vfs.FS, dir string) (int64, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		switch e.Kind {
		case vfs.KindDirectory:
			sub, err := estimateSize(fs, p)
			if err != nil {
				continue
			}
			total += sub
		case vfs.KindFile:
			info, err := fs.Lstat(p)
			if err != nil {
				continue
			}
			total += info.Size
		}
	}
	return total, nil
}

// Execute deletes every planned snapshot, oldest-first, unlinking entries
// bottom-up rather than dereferencing hard links.
func Execute(fs vfs.FS, planned []catalog.Snapshot) error {
	for _, s := range planned {
		if err := deleteTree(fs, s.Path); err != nil {
			return err
		}
		if err := fs.RemoveEmptyDir(s.Path); err != nil {
			return err
		}
	}
	return nil
}

func deleteTree(fs vfs.FS, dir string) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		if e.Kind == vfs.KindDirectory {
			if err := deleteTree(fs, p); err != nil {
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
