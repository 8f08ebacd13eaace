package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readLines returns the non-blank, non-comment lines of a flat config
// file. A missing file reads as empty.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	var b strings.Builder
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Whitelist is the set of glob patterns the user has protected from cleanup.
type Whitelist struct {
	Patterns []string
}

func LoadWhitelist(path string) (*Whitelist, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	return &Whitelist{Patterns: lines}, nil
}

// Save writes the patterns as given, one per line.
func (w *Whitelist) Save(path string) error {
	return writeLines(path, w.Patterns)
}

// Matches reports whether path is protected. Patterns may start with ~.
// A pattern ending in "/*" or "/**" protects everything below its
// directory, a plain path protects itself and its descendants, and a
// pattern without a slash is matched against the base name.
func (w *Whitelist) Matches(path string) bool {
	if w == nil || path == "" {
		return false
	}
	path = filepath.Clean(path)
	for _, raw := range w.Patterns {
		if matchPattern(raw, path) {
			return true
		}
	}
	return false
}

func matchPattern(raw, path string) bool {
	if !strings.Contains(raw, "/") && raw != "~" {
		ok, _ := filepath.Match(raw, filepath.Base(path))
		return ok
	}

	for _, suffix := range []string{"/**", "/*"} {
		if strings.HasSuffix(raw, suffix) {
			dir := ExpandPath(strings.TrimSuffix(raw, suffix))
			return strings.HasPrefix(path, dir+string(filepath.Separator))
		}
	}

	pattern := ExpandPath(raw)
	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	if strings.ContainsAny(pattern, "*?[") {
		return false
	}
	return path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator))
}

// LoadSearchPaths reads the extra artifact roots, expanded and de-duplicated.
func LoadSearchPaths(path string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search paths: %w", err)
	}
	seen := make(map[string]bool, len(lines))
	var paths []string
	for _, l := range lines {
		p := ExpandPath(l)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func SaveSearchPaths(path string, paths []string) error {
	return writeLines(path, paths)
}

// CleanSection is one "=== Name ===" block of the clean list.
type CleanSection struct {
	Name  string
	Paths []string
}

// CleanList maps engine categories to the paths a clean would remove.
type CleanList struct {
	Sections []CleanSection
}

// LoadCleanList parses the engine's clean list. Paths before the first
// section header are ignored. Trailing " # comment" annotations are dropped.
func LoadCleanList(path string) (*CleanList, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clean list: %w", err)
	}

	cl := &CleanList{}
	for _, line := range lines {
		if name, ok := sectionName(line); ok {
			cl.Sections = append(cl.Sections, CleanSection{Name: name})
			continue
		}
		if len(cl.Sections) == 0 {
			continue
		}
		line = stripComment(line)
		if line == "" {
			continue
		}
		cur := &cl.Sections[len(cl.Sections)-1]
		cur.Paths = append(cur.Paths, ExpandPath(line))
	}
	return cl, nil
}

// stripComment cuts a trailing annotation: a '#' preceded by whitespace.
// A '#' inside a path component is kept.
func stripComment(line string) string {
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

func sectionName(line string) (string, bool) {
	if !strings.HasPrefix(line, "===") || !strings.HasSuffix(line, "===") || len(line) < 6 {
		return "", false
	}
	name := strings.TrimSpace(strings.Trim(line, "="))
	return name, name != ""
}

// PathsFor returns the paths listed under category. Exact name matches are
// preferred; case-insensitive matches are used only when there are none.
// Repeated sections are merged in file order.
func (c *CleanList) PathsFor(category string) []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, s := range c.Sections {
		if s.Name == category {
			out = append(out, s.Paths...)
		}
	}
	if out != nil {
		return out
	}
	for _, s := range c.Sections {
		if strings.EqualFold(s.Name, category) {
			out = append(out, s.Paths...)
		}
	}
	return out
}
