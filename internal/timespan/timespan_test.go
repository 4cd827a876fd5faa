package timespan

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Span
		wantErr bool
	}{
		{"6m", Span{N: 6, Unit: Months}, false},
		{"2y", Span{N: 2, Unit: Years}, false},
		{"3w", Span{N: 3, Unit: Weeks}, false},
		{"10d", Span{N: 10, Unit: Days}, false},
		{"", Span{}, true},
		{"5", Span{}, true},
		{"-1d", Span{}, true},
		{"3x", Span{}, true},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestSpan_Before(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	span := Span{N: 1, Unit: Months}
	got := span.Before(now)
	want := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-07-30")
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2026 || got.Month() != time.July || got.Day() != 30 {
		t.Errorf("got %v", got)
	}

	if _, err := ParseDate("not-a-date"); err == nil {
		t.Error("expected an error for a malformed date")
	}
}
