package recovery

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/djabi/snapkeep/internal/catalog"
	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/filter"
	"github.com/djabi/snapkeep/internal/fstest"
	"github.com/djabi/snapkeep/internal/logging"
)

func newTestContext(fs *fstest.MemFS) *engine.Context {
	f, _ := filter.CompileStrings(nil)
	return &engine.Context{
		Log:    logging.New(&bytes.Buffer{}, false),
		FS:     fs,
		Rand:   rand.New(rand.NewSource(1)),
		Now:    func() time.Time { return time.Now() },
		Filter: f,
	}
}

func TestDistinctVersions(t *testing.T) {
	fs := fstest.New()
	now := time.Now()
	fs.WriteFile("/backup/2026/s1/doc.txt", []byte("v1"), 0o644, now)
	fs.HardLink("/backup/2026/s1/doc.txt", "/backup/2026/s2/doc.txt")
	fs.WriteFile("/backup/2026/s3/doc.txt", []byte("v2"), 0o644, now)

	occurrences := []catalog.Snapshot{
		{Path: "/backup/2026/s1", Name: "s1"},
		{Path: "/backup/2026/s2", Name: "s2"},
		{Path: "/backup/2026/s3", Name: "s3"},
	}
	versions := DistinctVersions(fs, occurrences, "doc.txt")
	if len(versions) != 2 {
		t.Fatalf("expected 2 distinct versions, got %d: %+v", len(versions), versions)
	}
	if versions[0].Name != "s1" || versions[1].Name != "s3" {
		t.Errorf("got %+v", versions)
	}
}

func TestRecover_RenamesOnCollision(t *testing.T) {
	fs := fstest.New()
	now := time.Now()
	fs.WriteFile("/backup/2026/s1/doc.txt", []byte("archived"), 0o644, now)
	fs.WriteFile("/live/doc.txt", []byte("current"), 0o644, now)

	dest, err := Recover(fs, catalog.Snapshot{Path: "/backup/2026/s1"}, "doc.txt", "/live")
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if dest != "/live/doc.1.txt" {
		t.Errorf("got %q", dest)
	}
	r, err := fs.OpenRead(dest)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.String() != "archived" {
		t.Errorf("recovered content = %q", buf.String())
	}
}

func TestPurge_RemovesEveryOccurrence(t *testing.T) {
	fs := fstest.New()
	now := time.Now()
	fs.WriteFile("/backup/2026/2026-01-01 00-00-00 (linux)/secret.txt", []byte("x"), 0o644, now)
	fs.WriteFile("/backup/2026/2026-01-02 00-00-00 (linux)/secret.txt", []byte("x"), 0o644, now)
	fs.WriteFile("/backup/2026/2026-01-02 00-00-00 (linux)/other.txt", []byte("y"), 0o644, now)

	affected, err := Purge(fs, "/backup", "secret.txt")
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if len(affected) != 2 {
		t.Errorf("expected 2 affected snapshots, got %d", len(affected))
	}
	if _, err := fs.Lstat("/backup/2026/2026-01-02 00-00-00 (linux)/secret.txt"); err == nil {
		t.Error("expected secret.txt to be gone")
	}
	if _, err := fs.Lstat("/backup/2026/2026-01-02 00-00-00 (linux)/other.txt"); err != nil {
		t.Error("expected other.txt to survive")
	}
}

func TestRestore_DeleteExtra(t *testing.T) {
	fs := fstest.New()
	now := time.Now()
	fs.WriteFile("/backup/2026/s1/a.txt", []byte("x"), 0o644, now)
	fs.WriteFile("/live/a.txt", []byte("x"), 0o644, now)
	fs.WriteFile("/live/extra.txt", []byte("y"), 0o644, now)

	if err := Restore(fs, catalog.Snapshot{Path: "/backup/2026/s1"}, "/live", true); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, err := fs.Lstat("/live/extra.txt"); err == nil {
		t.Error("expected extra.txt to be removed with deleteExtra")
	}
	if _, err := fs.Lstat("/live/a.txt"); err != nil {
		t.Error("expected a.txt to still exist")
	}
}

func TestRestore_SkipsEngineBookkeepingFiles(t *testing.T) {
	fs := fstest.New()
	now := time.Now()
	fs.WriteFile("/backup/2026/s1/a.txt", []byte("x"), 0o644, now)
	fs.WriteFile("/backup/2026/s1/checksums.sha3", []byte("a.txt deadbeef\n"), 0o644, now)
	fs.WriteFile("/backup/2026/s1/.snapshot-complete", []byte(""), 0o644, now)

	if err := Restore(fs, catalog.Snapshot{Path: "/backup/2026/s1"}, "/live", false); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, err := fs.Lstat("/live/a.txt"); err != nil {
		t.Error("expected a.txt to be restored")
	}
	if _, err := fs.Lstat("/live/checksums.sha3"); err == nil {
		t.Error("expected the checksum manifest not to be restored")
	}
	if _, err := fs.Lstat("/live/.snapshot-complete"); err == nil {
		t.Error("expected the completion sentinel not to be restored")
	}
}

func TestMoveBackup_PreservesHardLinks(t *testing.T) {
	fs := fstest.New()
	now := time.Now()
	fs.WriteFile("/backup/2026/2026-01-01 00-00-00 (linux)/a.txt", []byte("x"), 0o644, now)
	fs.HardLink(
		"/backup/2026/2026-01-01 00-00-00 (linux)/a.txt",
		"/backup/2026/2026-01-02 00-00-00 (linux)/a.txt",
	)

	snapshots := []catalog.Snapshot{
		{Path: "/backup/2026/2026-01-01 00-00-00 (linux)", Name: "2026-01-01 00-00-00 (linux)", Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Path: "/backup/2026/2026-01-02 00-00-00 (linux)", Name: "2026-01-02 00-00-00 (linux)", Time: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	ctx := newTestContext(fs)
	if err := MoveBackup(ctx, snapshots, "/moved"); err != nil {
		t.Fatalf("MoveBackup failed: %v", err)
	}

	id1, ok1 := fs.InodeID("/moved/2026/2026-01-01 00-00-00 (linux)/a.txt")
	id2, ok2 := fs.InodeID("/moved/2026/2026-01-02 00-00-00 (linux)/a.txt")
	if !ok1 || !ok2 || id1 != id2 {
		t.Error("expected the moved copies to still share an inode")
	}
}
