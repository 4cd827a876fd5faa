package vfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOS_CopyFileAndHardLink(t *testing.T) {
	dir, err := os.MkdirTemp("", "osfs_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	fs := New()
	src := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "b.txt")
	if err := CopyFile(fs, src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "hello" {
		t.Fatalf("copy content mismatch: %q, %v", got, err)
	}
	dstInfo, err := fs.Lstat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !dstInfo.ModTime.Equal(mtime) {
		t.Errorf("mtime not preserved: got %v, want %v", dstInfo.ModTime, mtime)
	}

	linkPath := filepath.Join(dir, "c.txt")
	if err := fs.HardLink(src, linkPath); err != nil {
		t.Fatalf("HardLink failed: %v", err)
	}

	id1, ok1 := fs.InodeID(src)
	id2, ok2 := fs.InodeID(linkPath)
	if !ok1 || !ok2 {
		t.Fatal("expected InodeID to be supported on this platform")
	}
	if id1 != id2 {
		t.Error("a hard-linked file should share the source's inode id")
	}

	id3, ok3 := fs.InodeID(dst)
	if !ok3 {
		t.Fatal("expected InodeID to be supported on this platform")
	}
	if id3 == id1 {
		t.Error("a copy should not share the source's inode id")
	}
}

func TestOS_ReadDirSorted(t *testing.T) {
	dir, err := os.MkdirTemp("", "osfs_test_readdir")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	for _, name := range []string{"c", "a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fs := New()
	entries, err := fs.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i].Name, name)
		}
	}
}
