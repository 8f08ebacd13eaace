// Package types holds the payloads shared between the scan service and its
// transports (SSE, desktop events).
package types

import (
	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/scanner"
)

// Scan statuses.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ScanUpdate is one change to a scan, pushed to subscribers. Exactly one of
// Event, Found or Sized is set while running; the final update carries only
// the status and, on failure, the error.
type ScanUpdate struct {
	Verb   string                   `json:"verb"`
	Token  uint64                   `json:"token"`
	Status string                   `json:"status"`
	Event  *parser.Event            `json:"event,omitempty"`
	Found  []scanner.DiscoveredPath `json:"found,omitempty"`
	Sized  *SizedPath               `json:"sized,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// SizedPath reports a size measured after discovery.
type SizedPath struct {
	ID        string `json:"id"`
	SizeBytes int64  `json:"sizeBytes"`
}
