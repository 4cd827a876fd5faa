// Package engine bundles the dependencies every operation needs (logger,
// filesystem, RNG, clock, filter) into one explicit value, instead of
// reaching for globals. Context is threaded through every operation
// function rather than owned by a long-lived struct, so it carries only
// the cross-cutting capabilities; config and catalog state stay in
// their own packages.
package engine

import (
	"math/rand"
	"time"

	"github.com/djabi/snapkeep/internal/filter"
	"github.com/djabi/snapkeep/internal/logging"
	"github.com/djabi/snapkeep/internal/staleness"
	"github.com/djabi/snapkeep/internal/vfs"
)

// Context is the explicit dependency bundle passed to every operation.
type Context struct {
	Log    *logging.Logger
	FS     vfs.FS
	Rand   *rand.Rand
	Now    func() time.Time
	Filter *filter.Filter
	// Compare selects quick (size+mtime) or deep (byte-for-byte) staleness
	// comparison; nil defaults to staleness.Quick{}.
	Compare staleness.Comparator
}

// New builds a production Context: a real clock, an OS filesystem, and a
// non-cryptographic PRNG seeded from run-start time.
func New(log *logging.Logger, f *filter.Filter) *Context {
	now := time.Now()
	return &Context{
		Log:     log,
		FS:      vfs.New(),
		Rand:    rand.New(rand.NewSource(now.UnixNano())),
		Now:     func() time.Time { return time.Now() },
		Filter:  f,
		Compare: staleness.Quick{},
	}
}

// Comparator returns the configured staleness comparator, defaulting to
// Quick.
func (c *Context) Comparator() staleness.Comparator {
	if c.Compare == nil {
		return staleness.Quick{}
	}
	return c.Compare
}
