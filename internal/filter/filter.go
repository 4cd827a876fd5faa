// Package filter compiles the ordered include/exclude glob rule list (spec
// §4.1) into a path predicate. Matching is built on
// github.com/bmatcuk/doublestar/v4, the same library and "last matching
// rule wins, negation via sign" approach used by mutagen-io/mutagen's
// pkg/synchronization/core/ignore.go. Every pattern is matched against the
// whole source-relative path; there is no leaf-name shortcut, so a
// slash-free pattern such as "*.tmp" matches only entries directly under
// the source root.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sign is the effect a rule has when it matches.
type Sign int

const (
	Include Sign = iota
	Exclude
)

func (s Sign) String() string {
	if s == Include {
		return "+"
	}
	return "-"
}

// Rule is one compiled include/exclude rule.
type Rule struct {
	Sign    Sign
	Pattern string // as written, relative to the source root
	Raw     string // original line, for warning messages
	used    bool
}

// Filter is a compiled, ordered rule list plus the case-sensitivity policy
// of the target filesystem.
type Filter struct {
	rules           []*Rule
	caseInsensitive bool
}

// CaseInsensitive configures Filter to match the way case-insensitive
// filesystems (Windows) do; the default, used via Compile, is
// case-sensitive.
func (f *Filter) CaseInsensitive(v bool) { f.caseInsensitive = v }

// Compile parses rule text (one rule per line: sign, whitespace, glob; `#`
// starts a comment; blank lines are skipped) into a Filter.
func Compile(r io.Reader) (*Filter, error) {
	f := &Filter{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if len(line) < 2 {
			return nil, fmt.Errorf("filter line %d: too short: %q", lineNo, line)
		}
		signCh := line[0]
		rest := strings.TrimSpace(line[1:])
		if rest == "" {
			return nil, fmt.Errorf("filter line %d: missing pattern", lineNo)
		}

		var sign Sign
		switch signCh {
		case '+':
			sign = Include
		case '-':
			sign = Exclude
		default:
			return nil, fmt.Errorf("filter line %d: invalid sign %q (want + or -)", lineNo, string(signCh))
		}

		pattern := strings.TrimPrefix(rest, "/")
		pattern = strings.TrimSuffix(pattern, "/")
		if err := validatePattern(pattern); err != nil {
			return nil, fmt.Errorf("filter line %d: %w", lineNo, err)
		}

		f.rules = append(f.rules, &Rule{Sign: sign, Pattern: pattern, Raw: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// CompileStrings compiles a filter from an in-memory slice of lines, for
// callers (and tests) that don't have an io.Reader handy.
func CompileStrings(lines []string) (*Filter, error) {
	return Compile(strings.NewReader(strings.Join(lines, "\n")))
}

func validatePattern(pattern string) error {
	if _, err := doublestar.Match(pattern, "a"); err != nil {
		return fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	return nil
}

// Included evaluates the predicate for a path relative to the source root,
// using forward slashes. isReparsePoint marks a platform reparse point
// (always false outside Windows); reparse points are excluded by default
// before user rules run, but a matching user rule can re-include them
func (f *Filter) Included(relPath string, isReparsePoint bool) bool {
	relPath = strings.TrimPrefix(strings.TrimPrefix(relPath, "/"), "./")
	included := !isReparsePoint

	matchPath := relPath
	if f.caseInsensitive {
		matchPath = strings.ToLower(matchPath)
	}

	for _, rule := range f.rules {
		pattern := rule.Pattern
		if f.caseInsensitive {
			pattern = strings.ToLower(pattern)
		}
		matched, _ := doublestar.Match(pattern, matchPath)
		if !matched {
			continue
		}
		rule.used = true
		included = rule.Sign == Include
	}
	return included
}

// UnusedRules returns every rule that never matched a candidate path
// during the run, so callers can warn about dead filter rules.
func (f *Filter) UnusedRules() []*Rule {
	var out []*Rule
	for _, r := range f.rules {
		if !r.used {
			out = append(out, r)
		}
	}
	return out
}

// Rules returns the compiled rule list in evaluation order.
func (f *Filter) Rules() []*Rule { return f.rules }
