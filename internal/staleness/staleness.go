// Package staleness decides whether a source file is equivalent to its
// counterpart in the previous snapshot.
package staleness

import (
	"errors"
	"io"

	"github.com/djabi/snapkeep/internal/vfs"
)

// CompareError is returned when the previous-snapshot counterpart can't be
// read. Callers must treat it as "not equivalent" and log it.
type CompareError struct {
	Path string
	Err  error
}

func (e *CompareError) Error() string {
	return "compare error: " + e.Path + ": " + e.Err.Error()
}

func (e *CompareError) Unwrap() error { return e.Err }

// Comparator decides file equivalence for the link-or-copy decision.
type Comparator interface {
	// Equivalent reports whether src and counterpart (both regular files,
	// already known to exist) are "the same" for linking purposes.
	Equivalent(fs vfs.FS, src, counterpart vfs.Info, srcPath, counterpartPath string) (bool, error)
}

// Quick compares size and second-precision mtime only (the default mode).
type Quick struct{}

func (Quick) Equivalent(_ vfs.FS, src, counterpart vfs.Info, _, _ string) (bool, error) {
	return src.Size == counterpart.Size && src.ModTime.Equal(counterpart.ModTime), nil
}

// Deep compares byte-for-byte content, ignoring mtime (--compare-contents).
type Deep struct{}

func (Deep) Equivalent(fs vfs.FS, src, counterpart vfs.Info, srcPath, counterpartPath string) (bool, error) {
	if src.Size != counterpart.Size {
		return false, nil
	}

	a, err := fs.OpenRead(srcPath)
	if err != nil {
		return false, &CompareError{Path: srcPath, Err: err}
	}
	defer a.Close()

	b, err := fs.OpenRead(counterpartPath)
	if err != nil {
		return false, &CompareError{Path: counterpartPath, Err: err}
	}
	defer b.Close()

	equal, err := readersEqual(a, b)
	if err != nil {
		return false, &CompareError{Path: counterpartPath, Err: err}
	}
	return equal, nil
}

func readersEqual(a, b io.Reader) (bool, error) {
	const chunk = 64 * 1024
	bufA := make([]byte, chunk)
	bufB := make([]byte, chunk)
	for {
		na, erra := io.ReadFull(a, bufA)
		nb, errb := io.ReadFull(b, bufB)
		if na != nb {
			return false, nil
		}
		if na > 0 && string(bufA[:na]) != string(bufB[:nb]) {
			return false, nil
		}
		doneA := errors.Is(erra, io.EOF) || errors.Is(erra, io.ErrUnexpectedEOF)
		doneB := errors.Is(errb, io.EOF) || errors.Is(errb, io.ErrUnexpectedEOF)
		if doneA != doneB {
			return false, nil
		}
		if doneA {
			return true, nil
		}
		if erra != nil {
			return false, erra
		}
		if errb != nil {
			return false, errb
		}
	}
}

// SymlinksEquivalent reports whether two symlink targets are equal (spec
// §3: "Symbolic links are equivalent iff both are symlinks with identical
// target strings").
func SymlinksEquivalent(a, b string) bool { return a == b }
