// Package catalog locates, orders, and names snapshots on disk.
// It never caches a snapshot list across calls: re-enumerating is cheap,
// and a cached list risks going stale across a retention run.
package catalog

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"time"

	"github.com/djabi/snapkeep/internal/vfs"
)

const timestampLayout = "2006-01-02 15-04-05"

var yearBucketPattern = regexp.MustCompile(`^[0-9]{4}$`)

// Snapshot identifies one backup directory by its catalog position.
type Snapshot struct {
	// Path is the full path to the snapshot directory.
	Path string
	// Name is the directory's base name, e.g. "2026-07-30 12-00-00 (linux)".
	Name string
	// Time is the instant parsed from the leading timestamp of Name.
	Time time.Time
}

// ParseName extracts the leading "YYYY-MM-DD HH-MM-SS" timestamp from a
// snapshot directory name. The os-label suffix (and any " (N)" collision
// suffix) is ignored for ordering purposes.
func ParseName(name string) (time.Time, bool) {
	if len(name) < len(timestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timestampLayout, name[:len(timestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Enumerate scans every year-bucket directory under root and returns every
// snapshot whose name parses to a valid timestamp, ascending by timestamp
// (spec: "skip unparseable entries silently, return ascending by
// timestamp"). Entries with equal timestamps (collision-suffixed names) are
// ordered by name as a stable tiebreak.
func Enumerate(fs vfs.FS, root string) ([]Snapshot, error) {
	if _, err := fs.Lstat(root); err != nil {
		return nil, nil
	}
	buckets, err := fs.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var out []Snapshot
	for _, bucket := range buckets {
		if bucket.Kind != vfs.KindDirectory || !yearBucketPattern.MatchString(bucket.Name) {
			continue
		}
		bucketPath := path.Join(root, bucket.Name)
		entries, err := fs.ReadDir(bucketPath)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Kind != vfs.KindDirectory {
				continue
			}
			t, ok := ParseName(e.Name)
			if !ok {
				continue
			}
			out = append(out, Snapshot{
				Path: path.Join(bucketPath, e.Name),
				Name: e.Name,
				Time: t,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Previous returns the most recent snapshot, or ok=false if the catalog is
// empty. By invariant, Previous equals the last element of Enumerate.
func Previous(fs vfs.FS, root string) (Snapshot, bool, error) {
	snapshots, err := Enumerate(fs, root)
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(snapshots) == 0 {
		return Snapshot{}, false, nil
	}
	return snapshots[len(snapshots)-1], true, nil
}

// Allocate computes the path for a new snapshot directory named from now
// and osLabel, disambiguating against any existing same-second collision by
// appending " (2)", " (3)", ...
func Allocate(fs vfs.FS, root string, now time.Time, osLabel string) (string, error) {
	yearDir := path.Join(root, now.Format("2006"))
	base := fmt.Sprintf("%s (%s)", now.Format(timestampLayout), osLabel)

	name := base
	for n := 2; ; n++ {
		candidate := path.Join(yearDir, name)
		if _, err := fs.Lstat(candidate); err != nil {
			return candidate, nil
		}
		name = fmt.Sprintf("%s (%d)", base, n)
	}
}
