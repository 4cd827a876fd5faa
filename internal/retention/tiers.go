package retention

import (
	"fmt"
	"time"

	"github.com/djabi/snapkeep/internal/catalog"
)

// DESIGN.md Open Question decision: the *newest* snapshot in each period is
// the one kept; every other snapshot in that period is a tiering
// candidate for deletion (the rsnapshot/Time Machine convention).

func yearlyKey(t time.Time) string  { return t.Format("2006") }
func monthlyKey(t time.Time) string { return t.Format("2006-01") }
func weeklyKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// thinTier walks items newest-to-oldest and marks every snapshot after the
// first (i.e. newest) one seen in its period as a tiering candidate.
func thinTier(items []catalog.Snapshot, periodKey func(time.Time) string) map[string]bool {
	deletable := make(map[string]bool)
	seen := make(map[string]bool)
	for i := len(items) - 1; i >= 0; i-- {
		key := periodKey(items[i].Time)
		if seen[key] {
			deletable[items[i].Path] = true
		} else {
			seen[key] = true
		}
	}
	return deletable
}
