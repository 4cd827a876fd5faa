// Package bytesize parses the byte-size literals used by --free-up and
// similar options: a decimal number optionally followed by a
// unit in {B, K, M, G, T, KB, MB, GB, TB}, case- and whitespace-insensitive,
// where every unit (including the bare-letter ones) is a power of 1024.
//
// This is deliberately hand-rolled rather than built on
// github.com/dustin/go-humanize's ParseBytes: humanize treats "K"/"KB" as
// decimal (1000-based) and reserves "KiB" for the binary interpretation,
// which is the opposite of what this spec requires. See DESIGN.md.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	_  = iota
	KB = 1 << (10 * iota)
	MB
	GB
	TB
)

var units = map[string]int64{
	"B":  1,
	"K":  KB,
	"KB": KB,
	"M":  MB,
	"MB": MB,
	"G":  GB,
	"GB": GB,
	"T":  TB,
	"TB": TB,
}

// Parse parses a byte-size literal such as "10GB", "512", " 6 m " into a
// byte count.
func Parse(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	i := 0
	for i < len(trimmed) && (isDigit(trimmed[i]) || trimmed[i] == '.') {
		i++
	}
	numPart := strings.TrimSpace(trimmed[:i])
	unitPart := strings.ToUpper(strings.TrimSpace(trimmed[i:]))
	if numPart == "" {
		return 0, fmt.Errorf("invalid byte size %q: no numeric value", s)
	}

	mult, ok := units[unitPart]
	if unitPart == "" {
		mult, ok = 1, true
	}
	if !ok {
		return 0, fmt.Errorf("invalid byte size %q: unknown unit %q", s, unitPart)
	}

	if strings.Contains(numPart, ".") {
		f, err := strconv.ParseFloat(numPart, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
		}
		return int64(f * float64(mult)), nil
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * mult, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
