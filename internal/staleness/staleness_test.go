package staleness

import (
	"testing"
	"time"

	"github.com/djabi/snapkeep/internal/fstest"
)

func TestQuick_Equivalent(t *testing.T) {
	fs := fstest.New()
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs.WriteFile("/a", []byte("hello"), 0o644, mtime)
	fs.WriteFile("/b", []byte("world"), 0o644, mtime) // same size, same mtime, different content

	srcInfo, _ := fs.Lstat("/a")
	cpInfo, _ := fs.Lstat("/b")
	equal, err := Quick{}.Equivalent(fs, srcInfo, cpInfo, "/a", "/b")
	if err != nil {
		t.Fatal(err)
	}
	if !equal {
		t.Error("Quick should consider equal-size, equal-mtime files equivalent regardless of content")
	}

	fs.WriteFile("/c", []byte("hello"), 0o644, mtime.Add(time.Hour))
	cInfo, _ := fs.Lstat("/c")
	equal, err = Quick{}.Equivalent(fs, srcInfo, cInfo, "/a", "/c")
	if err != nil {
		t.Fatal(err)
	}
	if equal {
		t.Error("Quick should consider a different mtime non-equivalent")
	}
}

func TestDeep_Equivalent(t *testing.T) {
	fs := fstest.New()
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fs.WriteFile("/a", []byte("hello world"), 0o644, mtime)
	fs.WriteFile("/b", []byte("hello world"), 0o644, mtime.Add(time.Hour))
	fs.WriteFile("/c", []byte("hello there"), 0o644, mtime)

	srcInfo, _ := fs.Lstat("/a")

	bInfo, _ := fs.Lstat("/b")
	equal, err := Deep{}.Equivalent(fs, srcInfo, bInfo, "/a", "/b")
	if err != nil {
		t.Fatal(err)
	}
	if !equal {
		t.Error("Deep should ignore mtime and find identical content equivalent")
	}

	cInfo, _ := fs.Lstat("/c")
	equal, err = Deep{}.Equivalent(fs, srcInfo, cInfo, "/a", "/c")
	if err != nil {
		t.Fatal(err)
	}
	if equal {
		t.Error("Deep should find differing content non-equivalent")
	}
}

func TestSymlinksEquivalent(t *testing.T) {
	if !SymlinksEquivalent("../a", "../a") {
		t.Error("identical targets should be equivalent")
	}
	if SymlinksEquivalent("../a", "../b") {
		t.Error("different targets should not be equivalent")
	}
}
