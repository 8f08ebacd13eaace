package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/trash"
)

var (
	// ErrNoScan means the verb has no scan to select from.
	ErrNoScan = errors.New("no scan results")
	// ErrUnknownSelection means an ID is not part of the latest scan.
	ErrUnknownSelection = errors.New("selection does not match the latest scan")
)

// TrashOutcome reports what a trash action did with each selected path.
type TrashOutcome struct {
	Results []trash.Result `json:"results"`
	// Protected paths matched the whitelist and were left alone.
	Protected []string `json:"protected,omitempty"`
	// Unresolved categories had no paths in the clean list.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Moved counts the paths that reached the trash.
func (o *TrashOutcome) Moved() int {
	n := 0
	for _, r := range o.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// TrashCategories trashes the clean-list paths behind the selected
// categories of the latest scan of verb. Per-path failures are reported in
// the outcome and joined into the error; they never stop the batch, and
// paths already moved stay moved.
func (s *Scanner) TrashCategories(ctx context.Context, verb string, ids []string) (*TrashOutcome, error) {
	view, ok := s.Snapshot(verb)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoScan, verb)
	}
	byID := make(map[string]string, len(view.Categories))
	for _, c := range view.Categories {
		byID[c.ID] = c.Name
	}

	cl, err := config.LoadCleanList(s.cfg.CleanListPath())
	if err != nil {
		return nil, err
	}

	out := &TrashOutcome{}
	var paths []string
	for _, id := range ids {
		name, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: category %s", ErrUnknownSelection, id)
		}
		resolved := cl.PathsFor(name)
		if len(resolved) == 0 {
			out.Unresolved = append(out.Unresolved, name)
			continue
		}
		paths = append(paths, resolved...)
	}
	return s.trash(ctx, verb, paths, out)
}

// TrashFound trashes the selected discoveries of the latest filesystem scan.
func (s *Scanner) TrashFound(ctx context.Context, verb string, ids []string) (*TrashOutcome, error) {
	view, ok := s.Snapshot(verb)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoScan, verb)
	}
	byID := make(map[string]string, len(view.Found))
	for _, f := range view.Found {
		byID[f.ID] = f.Path
	}

	var paths []string
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: path %s", ErrUnknownSelection, id)
		}
		paths = append(paths, p)
	}
	return s.trash(ctx, verb, paths, &TrashOutcome{})
}

func (s *Scanner) trash(ctx context.Context, verb string, paths []string, out *TrashOutcome) (*TrashOutcome, error) {
	wl := s.whitelist()
	seen := make(map[string]bool, len(paths))
	var targets []string
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if wl.Matches(p) {
			out.Protected = append(out.Protected, p)
			continue
		}
		targets = append(targets, p)
	}

	results, err := trash.Paths(ctx, s.mover, targets)
	out.Results = results
	s.log.WithFields(logrus.Fields{
		"verb":      verb,
		"moved":     out.Moved(),
		"failed":    len(results) - out.Moved(),
		"protected": len(out.Protected),
	}).Info("Trash action finished")
	return out, err
}
