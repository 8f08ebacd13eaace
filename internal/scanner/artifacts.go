package scanner

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth bounds how far below each root artifacts are looked for.
const DefaultMaxDepth = 4

// DefaultTargets are directory names treated as disposable build output.
var DefaultTargets = []string{
	"node_modules",
	"target",
	"dist",
	"build",
	".next",
	".nuxt",
	".turbo",
	".parcel-cache",
	".svelte-kit",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".venv",
	"venv",
	".gradle",
	"Pods",
	"DerivedData",
	".dart_tool",
}

// projectFolders are the conventional home-relative places projects live.
var projectFolders = []string{
	"Projects",
	"Developer",
	"Code",
	"dev",
	"src",
	"workspace",
	"GitHub",
}

// DefaultRoots returns the conventional project folders under home followed
// by any extra paths from the user's purge_paths file.
func DefaultRoots(home string, extra []string) []string {
	var roots []string
	if home != "" {
		for _, f := range projectFolders {
			roots = append(roots, filepath.Join(home, f))
		}
	}
	return dedupe(append(roots, extra...))
}

// ArtifactScanner finds target directories below a set of roots.
type ArtifactScanner struct {
	roots    []string
	targets  map[string]bool
	MaxDepth int
	// Exclude, when set, drops matches the user has protected.
	Exclude func(path string) bool
	now     func() time.Time
	log     *logrus.Entry
}

// NewArtifactScanner creates a scanner. An empty targets slice means
// DefaultTargets.
func NewArtifactScanner(roots, targets []string, log *logrus.Entry) *ArtifactScanner {
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ArtifactScanner{
		roots:    dedupe(roots),
		targets:  set,
		MaxDepth: DefaultMaxDepth,
		now:      time.Now,
		log:      log.WithField("component", "artifact-scanner"),
	}
}

// Roots returns the de-duplicated roots the scanner walks.
func (s *ArtifactScanner) Roots() []string {
	return s.roots
}

// Scan walks every root. Missing or unreadable roots are skipped. Matches
// come back in walk order with sizes unset.
func (s *ArtifactScanner) Scan(ctx context.Context) ([]DiscoveredPath, error) {
	now := s.now()
	var found []DiscoveredPath
	keepHidden := func(name string) bool { return s.targets[name] }

	for _, root := range s.roots {
		err := walk(ctx, root, s.MaxDepth, keepHidden, func(path string, d fs.DirEntry, depth int) bool {
			if !d.IsDir() || !s.targets[d.Name()] {
				return false
			}
			if s.Exclude != nil && s.Exclude(path) {
				// protected, but still a match: do not descend
				return true
			}
			found = append(found, newDiscovered(path, d.Name(), modTime(d), now))
			return true
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return found, err
			}
			s.log.WithFields(logrus.Fields{"root": root, "error": err}).Warn("Artifact walk failed")
		}
	}

	s.log.WithFields(logrus.Fields{"roots": len(s.roots), "found": len(found)}).Debug("Artifact scan finished")
	return found, nil
}
