// Package sizes converts between the engine's human-readable size tokens
// ("5.50GB", "512 B") and byte counts. Parsers and scanners share it so both
// paths agree on units.
package sizes

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// 1024-based multipliers.
const (
	KB int64 = 1 << 10
	MB int64 = 1 << 20
	GB int64 = 1 << 30
	TB int64 = 1 << 40
)

// TokenPattern matches a size token with a recognised unit. Parsers embed it
// in their line grammars.
const TokenPattern = `\d+(?:\.\d+)?\s*(?i:[KMGT]?B)`

var tokenRE = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

var multipliers = map[string]int64{
	"B":  1,
	"KB": KB,
	"MB": MB,
	"GB": GB,
	"TB": TB,
}

// Parse converts "<decimal><optional space><unit>" into bytes. Units are
// case-insensitive. An unrecognised (or missing) unit is read as bytes.
// ok is false when s is not a number followed by letters, or when the
// value does not fit in an int64.
func Parse(s string) (bytes int64, ok bool) {
	m := tokenRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	mult, known := multipliers[strings.ToUpper(m[2])]
	if !known {
		mult = 1
	}
	bytes64 := math.Round(value * float64(mult))
	// float64(MaxInt64) rounds up to 2^63, which no longer fits.
	if math.IsInf(bytes64, 0) || math.IsNaN(bytes64) || bytes64 >= float64(math.MaxInt64) {
		return 0, false
	}
	return int64(bytes64), true
}

// Format renders bytes using the largest unit whose value is >= 1:
// integer bytes below 1KB, whole kilobytes, one decimal above that.
func Format(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1fTB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.0fKB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// FormatPtr formats an optional size, returning "" when unset.
func FormatPtr(bytes *int64) string {
	if bytes == nil {
		return ""
	}
	return Format(*bytes)
}

// Unit returns the unit suffix Format would choose for bytes.
func Unit(bytes int64) string {
	switch {
	case bytes >= TB:
		return "TB"
	case bytes >= GB:
		return "GB"
	case bytes >= MB:
		return "MB"
	case bytes >= KB:
		return "KB"
	default:
		return "B"
	}
}
