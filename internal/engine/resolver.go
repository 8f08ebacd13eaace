package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// BinaryName is the engine executable looked up on PATH.
const BinaryName = "mole"

// DefaultCandidates lists well-known install locations, most specific first.
func DefaultCandidates(home string) []string {
	candidates := []string{
		"/opt/homebrew/bin/mole",
		"/usr/local/bin/mole",
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", "mole"),
			filepath.Join(home, ".mole", "mole"),
			filepath.Join(home, "bin", "mole"),
		)
	}
	return candidates
}

// Resolver finds the engine binary and remembers the first success for the
// lifetime of the resolver. Failures are not cached, so a later install is
// picked up on the next call.
type Resolver struct {
	override   string
	candidates []string
	lookPath   func(string) (string, error)

	mu    sync.Mutex
	path  string
	group singleflight.Group
}

// NewResolver creates a resolver. override, when set, is tried before the
// candidate list.
func NewResolver(override string, candidates []string) *Resolver {
	return &Resolver{
		override:   override,
		candidates: candidates,
		lookPath:   exec.LookPath,
	}
}

// Resolve returns the engine path or an error wrapping ErrEngineNotFound.
func (r *Resolver) Resolve() (string, error) {
	r.mu.Lock()
	cached := r.path
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	v, err, _ := r.group.Do("resolve", func() (interface{}, error) {
		path, err := r.search()
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.path = path
		r.mu.Unlock()
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Cached returns the memoized path, or "" when nothing was resolved yet.
func (r *Resolver) Cached() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Resolver) search() (string, error) {
	var tried []string
	paths := r.candidates
	if r.override != "" {
		paths = append([]string{r.override}, paths...)
	}
	for _, p := range paths {
		tried = append(tried, p)
		if isExecutable(p) {
			return p, nil
		}
	}

	if r.lookPath != nil {
		if p, err := r.lookPath(BinaryName); err == nil {
			return p, nil
		}
		tried = append(tried, "$PATH")
	}

	return "", fmt.Errorf("%w (searched %s)", ErrEngineNotFound, strings.Join(tried, ", "))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
