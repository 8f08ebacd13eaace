package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSizeConcurrency caps simultaneous size queries.
	DefaultSizeConcurrency = 10
	duTimeout              = 60 * time.Second
)

// SizeFunc measures the on-disk size of one path.
type SizeFunc func(ctx context.Context, path string) (int64, error)

// Sizer measures paths with bounded concurrency. Concurrent requests for the
// same path share one measurement.
type Sizer struct {
	limit   int
	measure SizeFunc
	group   singleflight.Group
	log     *logrus.Entry
}

// NewSizer creates a Sizer backed by du. A limit below 1 means
// DefaultSizeConcurrency.
func NewSizer(limit int, log *logrus.Entry) *Sizer {
	return NewSizerFunc(limit, DuSize, log)
}

// NewSizerFunc creates a Sizer with a custom measurement.
func NewSizerFunc(limit int, measure SizeFunc, log *logrus.Entry) *Sizer {
	if limit < 1 {
		limit = DefaultSizeConcurrency
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sizer{limit: limit, measure: measure, log: log.WithField("component", "sizer")}
}

// Size measures one path.
func (s *Sizer) Size(ctx context.Context, path string) (int64, error) {
	v, err, _ := s.group.Do(path, func() (interface{}, error) {
		return s.measure(ctx, path)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Measure sizes every path, at most limit at a time, and calls report once
// per path as results arrive. report may be called from several goroutines.
// Failures are reported and joined into the returned error; they never stop
// the batch.
func (s *Sizer) Measure(ctx context.Context, paths []string, report func(i int, size int64, err error)) error {
	var g errgroup.Group
	g.SetLimit(s.limit)

	errs := make([]error, len(paths))
	for i, p := range paths {
		g.Go(func() error {
			size, err := s.Size(ctx, p)
			if err != nil {
				errs[i] = fmt.Errorf("size %s: %w", p, err)
				s.log.WithFields(logrus.Fields{"path": p, "error": err}).Debug("Size query failed")
			}
			if report != nil {
				report(i, size, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Fill sets SizeBytes on each discovered path. Entries whose size could not
// be measured keep a nil size.
func (s *Sizer) Fill(ctx context.Context, found []DiscoveredPath) error {
	paths := make([]string, len(found))
	for i := range found {
		paths[i] = found[i].Path
	}
	return s.Measure(ctx, paths, func(i int, size int64, err error) {
		if err == nil {
			found[i].SizeBytes = &size
		}
	})
}

// DuSize asks du for the allocated size of path in kilobytes.
func DuSize(ctx context.Context, path string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, duTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "du", "-sk", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, fmt.Errorf("du timeout after %v", duTimeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return 0, fmt.Errorf("du failed: %w (%s)", err, msg)
		}
		return 0, fmt.Errorf("du failed: %w", err)
	}
	return parseDu(stdout.String())
}

func parseDu(out string) (int64, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, fmt.Errorf("du output empty")
	}
	kb, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse du output: %w", err)
	}
	if kb < 0 {
		return 0, fmt.Errorf("du size invalid: %d", kb)
	}
	return kb * 1024, nil
}
