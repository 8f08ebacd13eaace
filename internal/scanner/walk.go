// Package scanner discovers build artifacts and installer files on disk
// without asking the engine. Discovery is a depth-bounded walk; sizes are
// filled in afterwards by a Sizer.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// RecentWindow marks artifacts touched this recently as in active use.
const RecentWindow = 7 * 24 * time.Hour

// protectedDirs are never entered, at any depth.
var protectedDirs = map[string]bool{
	"Library": true,
	"System":  true,
	".Trash":  true,
}

// DiscoveredPath is one match from a scan. SizeBytes stays nil until a
// Sizer has measured it, and stays nil if measuring failed.
type DiscoveredPath struct {
	ID                 string    `json:"id"`
	Path               string    `json:"path"`
	Project            string    `json:"project"`
	Kind               string    `json:"kind"`
	SizeBytes          *int64    `json:"sizeBytes,omitempty"`
	ModTime            time.Time `json:"modTime"`
	IsRecentlyModified bool      `json:"isRecentlyModified"`
}

// PathID is a stable identifier for a path, used to select results in the API.
func PathID(path string) string {
	return strconv.FormatUint(xxhash.Sum64String(path), 16)
}

func newDiscovered(path, kind string, mod, now time.Time) DiscoveredPath {
	return DiscoveredPath{
		ID:                 PathID(path),
		Path:               path,
		Project:            filepath.Base(filepath.Dir(path)),
		Kind:               kind,
		ModTime:            mod,
		IsRecentlyModified: !mod.IsZero() && now.Sub(mod) < RecentWindow,
	}
}

// visitFunc decides what to do with one entry below the root. Returning
// true records the entry as matched; matched directories are not entered.
type visitFunc func(path string, d fs.DirEntry, depth int) bool

// walk visits entries under root down to maxDepth. Hidden and protected
// directories are skipped unless keepHidden says the name is wanted.
// Symlinked directories are reported as non-directories by WalkDir and are
// never followed.
func walk(ctx context.Context, root string, maxDepth int, keepHidden func(string) bool, visit visitFunc) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			// unreadable root or entry
			return nil
		}
		if path == root {
			return nil
		}

		depth := depthBelow(root, path)
		name := d.Name()
		if d.IsDir() {
			if protectedDirs[name] {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") && !keepHidden(name) {
				return filepath.SkipDir
			}
		}

		if visit(path, d, depth) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && depth >= maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
}

func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func modTime(d fs.DirEntry) time.Time {
	info, err := d.Info()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// dedupe drops empty and repeated roots and roots nested inside another
// root, so no directory is walked twice.
func dedupe(roots []string) []string {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			cleaned = append(cleaned, filepath.Clean(r))
		}
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) < len(cleaned[j]) })

	var out []string
	for _, r := range cleaned {
		if !within(r, out) {
			out = append(out, r)
		}
	}
	return out
}

func within(path string, roots []string) bool {
	for _, r := range roots {
		if path == r || r == string(filepath.Separator) || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
