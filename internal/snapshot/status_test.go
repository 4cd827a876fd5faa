package snapshot

import (
	"sort"
	"testing"
	"time"

	"github.com/djabi/snapkeep/internal/filter"
)

func TestStatus_ClassifiesEachFile(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	fs, ctx := newTestContext(now)
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs.WriteFile("/src/unchanged.txt", []byte("a"), 0o644, mtime)
	fs.WriteFile("/src/modified.txt", []byte("before"), 0o644, mtime)

	b := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	if _, _, err := b.Build(); err != nil {
		t.Fatal(err)
	}

	fs.WriteFile("/src/modified.txt", []byte("after"), 0o644, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	fs.WriteFile("/src/new.txt", []byte("a"), 0o644, mtime)

	entries, err := Status(ctx, "/src", "/backup", false)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })

	want := map[string]State{"modified.txt": StateModified, "new.txt": StateNew, "unchanged.txt": StateUnchanged}
	if len(entries) != len(want) {
		t.Fatalf("got %+v", entries)
	}
	for _, e := range entries {
		if e.State != want[e.RelPath] {
			t.Errorf("%s: got %s, want %s", e.RelPath, e.State, want[e.RelPath])
		}
	}
}

func TestStatus_ReportsNewPathWithNoPreviousSnapshot(t *testing.T) {
	fs, ctx := newTestContext(time.Now())
	fs.WriteFile("/src/a.txt", []byte("x"), 0o644, time.Now())

	entries, err := Status(ctx, "/src", "/backup", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State != StateNew {
		t.Errorf("got %+v", entries)
	}
}

func TestStatus_ShowIgnoredIncludesExcludedPaths(t *testing.T) {
	fs, ctx := newTestContext(time.Now())
	ctx.Filter, _ = filter.CompileStrings([]string{"- *.log"})
	fs.WriteFile("/src/keep.txt", []byte("x"), 0o644, time.Now())
	fs.WriteFile("/src/drop.log", []byte("x"), 0o644, time.Now())

	withoutIgnored, err := Status(ctx, "/src", "/backup", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(withoutIgnored) != 1 {
		t.Fatalf("expected the excluded path to be dropped by default, got %+v", withoutIgnored)
	}

	withIgnored, err := Status(ctx, "/src", "/backup", true)
	if err != nil {
		t.Fatal(err)
	}
	var sawIgnored bool
	for _, e := range withIgnored {
		if e.RelPath == "drop.log" && e.State == StateIgnored {
			sawIgnored = true
		}
	}
	if !sawIgnored {
		t.Errorf("expected drop.log to be reported as ignored, got %+v", withIgnored)
	}
}
