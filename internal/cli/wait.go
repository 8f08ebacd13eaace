package cli

import (
	"context"
	"errors"
	"time"

	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/types"
)

const pollInterval = 250 * time.Millisecond

// awaitScan starts a scan with start and calls onUpdate for each of its
// updates until it finishes. Updates a slow reader misses are recovered
// from the final view, which is polled as a fallback.
func awaitScan(ctx context.Context, s *services.Scanner, verb string, start func() (uint64, error), onUpdate func(*types.ScanUpdate)) (services.View, error) {
	updates := s.Subscribe(verb)
	defer s.Unsubscribe(verb, updates)

	token, err := start()
	if err != nil {
		return services.View{}, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	finished := func() (services.View, bool) {
		view, ok := s.Snapshot(verb)
		if !ok || view.Token != token {
			return view, false
		}
		return view, view.Status == types.StatusCompleted || view.Status == types.StatusFailed
	}

	for {
		select {
		case <-ctx.Done():
			return services.View{}, ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return services.View{}, errors.New("scanner closed")
			}
			if u.Token != token {
				continue
			}
			if onUpdate != nil {
				onUpdate(u)
			}
			if u.Status == types.StatusCompleted || u.Status == types.StatusFailed {
				return waitView(ctx, finished)
			}
		case <-ticker.C:
			if view, done := finished(); done {
				return view, nil
			}
		}
	}
}

// waitView waits for the view to reflect the terminal update. The consumer
// applies an update before broadcasting it, so this normally returns at once.
func waitView(ctx context.Context, finished func() (services.View, bool)) (services.View, error) {
	for {
		if view, done := finished(); done {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return services.View{}, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
