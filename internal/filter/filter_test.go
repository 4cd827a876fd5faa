package filter

import "testing"

func TestIncluded_LastMatchWins(t *testing.T) {
	f, err := CompileStrings([]string{
		"-*.tmp",
		"+keep.tmp",
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if f.Included("scratch.tmp", false) {
		t.Error("scratch.tmp should be excluded")
	}
	if !f.Included("keep.tmp", false) {
		t.Error("keep.tmp should be re-included by the later rule")
	}
	if !f.Included("notes.txt", false) {
		t.Error("notes.txt never matches a rule, so the default include applies")
	}
}

func TestIncluded_ReparsePointDefaultExcluded(t *testing.T) {
	f, err := CompileStrings(nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Included("link", true) {
		t.Error("a reparse point should be excluded before any rule runs")
	}
	f2, err := CompileStrings([]string{"+link"})
	if err != nil {
		t.Fatal(err)
	}
	if !f2.Included("link", true) {
		t.Error("an explicit include rule should re-include a reparse point")
	}
}

func TestCompile_RejectsBadSign(t *testing.T) {
	if _, err := CompileStrings([]string{"*no-sign"}); err == nil {
		t.Fatal("expected an error for a line without a leading + or -")
	}
}

func TestUnusedRules(t *testing.T) {
	f, err := CompileStrings([]string{"-*.tmp", "-never-matches.xyz"})
	if err != nil {
		t.Fatal(err)
	}
	f.Included("a.tmp", false)

	unused := f.UnusedRules()
	if len(unused) != 1 || unused[0].Pattern != "never-matches.xyz" {
		t.Errorf("got %+v", unused)
	}
}
