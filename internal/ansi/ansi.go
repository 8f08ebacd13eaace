// Package ansi removes terminal escape sequences from engine output so the
// parsers only ever see plain text.
package ansi

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// Strip removes CSI (ESC [ ... letter) and OSC (ESC ] ... BEL/ST) sequences.
// Input without escapes is returned unchanged.
func Strip(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}
	return xansi.Strip(s)
}

// CleanLine strips escapes, keeps only the last carriage-return segment
// (spinners redraw in place) and trims surrounding whitespace.
func CleanLine(s string) string {
	s = Strip(s)
	if i := strings.LastIndexByte(s, '\r'); i >= 0 {
		tail := s[i+1:]
		if strings.TrimSpace(tail) == "" {
			tail = s[:i]
			if j := strings.LastIndexByte(tail, '\r'); j >= 0 {
				tail = tail[j+1:]
			}
		}
		s = tail
	}
	return strings.TrimSpace(s)
}
