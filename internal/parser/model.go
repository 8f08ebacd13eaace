// Package parser turns the engine's glyph-annotated text output into
// categories, items and an optional summary. A Parser consumes one line at a
// time and emits Events, so callers can render results while the engine is
// still running.
package parser

import "fmt"

// Item is one line of work reported inside a category.
type Item struct {
	Description string `json:"description"`
	SizeBytes   *int64 `json:"sizeBytes,omitempty"`
}

// Category is a named section of engine output.
type Category struct {
	Name      string `json:"name"`
	Items     []Item `json:"items"`
	TotalSize *int64 `json:"totalSize,omitempty"` // nil until an item carried a size
}

// Summary is the engine's trailer line. When present it is authoritative
// over totals computed from items.
type Summary struct {
	TotalSize     *int64 `json:"totalSize,omitempty"`
	TotalSizeText string `json:"totalSizeText"`
	ItemCount     int    `json:"itemCount"`
	CategoryCount int    `json:"categoryCount"`
}

// Result is everything one parse pass produced.
type Result struct {
	Categories []Category `json:"categories"`
	Summary    *Summary   `json:"summary,omitempty"`
	Activity   string     `json:"activity,omitempty"`
}

// EventKind identifies a parser state change.
type EventKind int

const (
	CategoryOpened EventKind = iota
	ItemAppended
	CategoryClosed
	SummarySet
	ActivityChanged
)

func (k EventKind) String() string {
	switch k {
	case CategoryOpened:
		return "category-opened"
	case ItemAppended:
		return "item-appended"
	case CategoryClosed:
		return "category-closed"
	case SummarySet:
		return "summary-set"
	case ActivityChanged:
		return "activity-changed"
	}
	return "unknown"
}

// MarshalText renders the kind by name so JSON consumers see
// "item-appended" rather than a number.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	for c := CategoryOpened; c <= ActivityChanged; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Event is a single state change. Index is the category's position in
// Result.Categories for the category events.
type Event struct {
	Kind     EventKind `json:"kind"`
	Index    int       `json:"index"`
	Category string    `json:"category,omitempty"`
	Item     *Item     `json:"item,omitempty"`
	Total    *int64    `json:"total,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
	Activity string    `json:"activity,omitempty"`
}

// Apply folds ev into r. Events referring to unknown category indexes are
// ignored.
func (r *Result) Apply(ev Event) {
	switch ev.Kind {
	case CategoryOpened:
		r.Categories = append(r.Categories, Category{Name: ev.Category, Items: []Item{}})
	case ItemAppended:
		if ev.Item != nil && r.valid(ev.Index) {
			r.Categories[ev.Index].Items = append(r.Categories[ev.Index].Items, *ev.Item)
		}
	case CategoryClosed:
		if r.valid(ev.Index) {
			r.Categories[ev.Index].TotalSize = ev.Total
		}
	case SummarySet:
		r.Summary = ev.Summary
	case ActivityChanged:
		r.Activity = ev.Activity
	}
}

func (r *Result) valid(i int) bool {
	return i >= 0 && i < len(r.Categories)
}

// TotalSize prefers the summary total and falls back to the sum of known
// category totals. ok is false when neither is known.
func (r *Result) TotalSize() (total int64, ok bool) {
	if r.Summary != nil && r.Summary.TotalSize != nil {
		return *r.Summary.TotalSize, true
	}
	for _, c := range r.Categories {
		if c.TotalSize != nil {
			total += *c.TotalSize
			ok = true
		}
	}
	return total, ok
}

// ItemCount prefers the summary count over counting items.
func (r *Result) ItemCount() int {
	if r.Summary != nil {
		return r.Summary.ItemCount
	}
	n := 0
	for _, c := range r.Categories {
		n += len(c.Items)
	}
	return n
}

// sumSizes totals the items that carried a size, nil when none did.
func sumSizes(items []Item) *int64 {
	var total int64
	known := false
	for _, it := range items {
		if it.SizeBytes != nil {
			total += *it.SizeBytes
			known = true
		}
	}
	if !known {
		return nil
	}
	return &total
}
