package services

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/scanner"
	"github.com/lyallcooper/moleui/internal/types"
)

// scanView is the consumer-owned state of the latest scan of one verb.
type scanView struct {
	verb       string
	token      uint64
	status     string
	dryRun     bool
	result     parser.Result
	found      []scanner.DiscoveredPath
	err        error
	startedAt  time.Time
	finishedAt *time.Time
}

// CategoryView is a parsed category with a selection ID.
type CategoryView struct {
	ID string `json:"id"`
	parser.Category
}

// View is a point-in-time copy of a scan.
type View struct {
	Verb       string                   `json:"verb"`
	Token      uint64                   `json:"token"`
	Status     string                   `json:"status"`
	DryRun     bool                     `json:"dryRun"`
	Categories []CategoryView           `json:"categories"`
	Summary    *parser.Summary          `json:"summary,omitempty"`
	Activity   string                   `json:"activity,omitempty"`
	TotalSize  *int64                   `json:"totalSize,omitempty"`
	ItemCount  int                      `json:"itemCount"`
	Found      []scanner.DiscoveredPath `json:"found,omitempty"`
	Error      string                   `json:"error,omitempty"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt *time.Time               `json:"finishedAt,omitempty"`
}

// CategoryID identifies a category within one scan. Two categories with the
// same name get different IDs.
func CategoryID(verb string, token uint64, index int, name string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%s\x00%d\x00%d\x00%s", verb, token, index, name)))
}

func (v *scanView) snapshot() View {
	out := View{
		Verb:       v.verb,
		Token:      v.token,
		Status:     v.status,
		DryRun:     v.dryRun,
		Categories: make([]CategoryView, len(v.result.Categories)),
		Activity:   v.result.Activity,
		ItemCount:  v.result.ItemCount(),
		StartedAt:  v.startedAt,
		FinishedAt: v.finishedAt,
	}
	for i, c := range v.result.Categories {
		c.Items = append([]parser.Item(nil), c.Items...)
		out.Categories[i] = CategoryView{ID: CategoryID(v.verb, v.token, i, c.Name), Category: c}
	}
	if v.result.Summary != nil {
		sum := *v.result.Summary
		out.Summary = &sum
	}
	if total, ok := v.result.TotalSize(); ok {
		out.TotalSize = &total
	}
	if v.found != nil {
		out.Found = append([]scanner.DiscoveredPath(nil), v.found...)
		if out.TotalSize == nil {
			out.TotalSize = foundTotal(v.found)
		}
	}
	if v.err != nil {
		out.Error = v.err.Error()
	}
	return out
}

func foundTotal(found []scanner.DiscoveredPath) *int64 {
	var total int64
	known := false
	for _, f := range found {
		if f.SizeBytes != nil {
			total += *f.SizeBytes
			known = true
		}
	}
	if !known {
		return nil
	}
	return &total
}

// Snapshot returns the latest scan of verb. ok is false when that verb has
// never been scanned. While a superseding scan has been issued but not yet
// started, the previous view is returned.
func (s *Scanner) Snapshot(verb string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.views[verb]
	if v == nil {
		return View{Verb: verb, Status: types.StatusIdle}, false
	}
	return v.snapshot(), true
}

// Latest returns the newest token issued for verb, zero if none.
func (s *Scanner) Latest(verb string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[verb]
}
