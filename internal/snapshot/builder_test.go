package snapshot

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/filter"
	"github.com/djabi/snapkeep/internal/fstest"
	"github.com/djabi/snapkeep/internal/logging"
	"github.com/djabi/snapkeep/internal/staleness"
)

func newTestContext(now time.Time) (*fstest.MemFS, *engine.Context) {
	fs := fstest.New()
	f, _ := filter.CompileStrings(nil)
	ctx := &engine.Context{
		Log:     logging.New(&bytes.Buffer{}, false),
		FS:      fs,
		Rand:    rand.New(rand.NewSource(1)),
		Now:     func() time.Time { return now },
		Filter:  f,
		Compare: staleness.Quick{},
	}
	return fs, ctx
}

func TestBuild_FirstSnapshotCopiesEverything(t *testing.T) {
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs, ctx := newTestContext(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	fs.WriteFile("/src/docs/a.txt", []byte("hello"), 0o644, mtime)
	fs.WriteFile("/src/docs/b.txt", []byte("world"), 0o644, mtime)

	b := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	dest, stats, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if stats.FilesTotal != 2 || stats.FilesCopied != 2 || stats.FilesLinked != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if _, err := fs.Lstat(dest + "/docs/a.txt"); err != nil {
		t.Errorf("expected a.txt to exist in the new snapshot: %v", err)
	}
	if _, err := fs.Lstat(dest + "/.snapshot-complete"); err != nil {
		t.Error("expected a completion sentinel")
	}
}

func TestBuild_SecondSnapshotLinksUnchangedFiles(t *testing.T) {
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs, ctx := newTestContext(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	fs.WriteFile("/src/a.txt", []byte("hello"), 0o644, mtime)

	first := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	firstDest, _, err := first.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	ctx.Now = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }
	second := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	secondDest, stats, err := second.Build()
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if stats.FilesLinked != 1 || stats.FilesCopied != 0 {
		t.Errorf("expected the unchanged file to be hard-linked, got %+v", stats)
	}

	id1, ok1 := fs.InodeID(firstDest + "/a.txt")
	id2, ok2 := fs.InodeID(secondDest + "/a.txt")
	if !ok1 || !ok2 || id1 != id2 {
		t.Error("expected the second snapshot's file to share the first's inode")
	}
}

func TestBuild_ChangedFileIsCopied(t *testing.T) {
	fs, ctx := newTestContext(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	fs.WriteFile("/src/a.txt", []byte("hello"), 0o644, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	if _, _, err := first.Build(); err != nil {
		t.Fatal(err)
	}

	fs.WriteFile("/src/a.txt", []byte("changed"), 0o644, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	ctx.Now = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }
	second := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	_, stats, err := second.Build()
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesCopied != 1 || stats.FilesLinked != 0 {
		t.Errorf("expected the changed file to be copied, got %+v", stats)
	}
}

func TestBuild_ForceCopyNeverLinks(t *testing.T) {
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs, ctx := newTestContext(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	fs.WriteFile("/src/a.txt", []byte("hello"), 0o644, mtime)

	first := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	if _, _, err := first.Build(); err != nil {
		t.Fatal(err)
	}

	ctx.Now = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }
	second := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux", ForceCopy: true})
	_, stats, err := second.Build()
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesCopied != 1 || stats.FilesLinked != 0 {
		t.Errorf("expected --force-copy to always copy, got %+v", stats)
	}
}

func TestBuild_ReincludeUnderExcludedDirectory(t *testing.T) {
	fs, ctx := newTestContext(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	ctx.Filter, _ = filter.CompileStrings([]string{"- dir/**", "+ dir/keep/**"})
	fs.WriteFile("/src/dir/drop.txt", []byte("x"), 0o644, time.Now())
	fs.WriteFile("/src/dir/keep/x.txt", []byte("x"), 0o644, time.Now())

	b := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	dest, _, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Lstat(dest + "/dir/keep/x.txt"); err != nil {
		t.Error("expected dir/keep/x.txt to survive a re-include rule under an excluded ancestor")
	}
	if _, err := fs.Lstat(dest + "/dir/drop.txt"); err == nil {
		t.Error("expected dir/drop.txt to stay excluded")
	}
}

func TestBuild_EmptyDirectoriesAreNotMirrored(t *testing.T) {
	fs, ctx := newTestContext(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	fs.Mkdir("/src/empty")
	fs.WriteFile("/src/docs/a.txt", []byte("x"), 0o644, time.Now())

	b := New(ctx, Options{SourceRoot: "/src", BackupRoot: "/backup", OSLabel: "linux"})
	dest, _, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Lstat(dest + "/empty"); err == nil {
		t.Error("expected the empty source directory not to appear in the snapshot")
	}
}
