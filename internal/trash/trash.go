// Package trash moves paths to the user's trash. Each path succeeds or fails
// on its own; one failure never stops the rest of a batch.
package trash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ErrTrashFailed wraps every per-path failure.
var ErrTrashFailed = errors.New("move to trash failed")

// Mover moves a single absolute path to the trash.
type Mover interface {
	Move(ctx context.Context, path string) error
}

// Result is the outcome for one requested path.
type Result struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the path was trashed.
func (r Result) OK() bool { return r.Error == "" }

// Paths trashes every path with m and returns one Result per input, in
// order. The error joins all failures and is nil when every path moved.
func Paths(ctx context.Context, m Mover, paths []string) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	var errs []error
	for _, p := range paths {
		err := move(ctx, m, p)
		r := Result{Path: p}
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrTrashFailed, p, err)
			r.Error = err.Error()
			errs = append(errs, err)
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

func move(ctx context.Context, m Mover, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		return errors.New("path is not absolute")
	}
	if _, err := os.Lstat(path); err != nil {
		return err
	}
	return m.Move(ctx, path)
}

// New returns the platform mover: Finder with a ~/.Trash fallback on macOS,
// the freedesktop trash elsewhere.
func New(home string) Mover {
	if runtime.GOOS == "darwin" {
		return Chain{NewFinder(), &Dir{Files: filepath.Join(home, ".Trash")}}
	}
	data := os.Getenv("XDG_DATA_HOME")
	if data == "" {
		data = filepath.Join(home, ".local", "share")
	}
	base := filepath.Join(data, "Trash")
	return &Dir{Files: filepath.Join(base, "files"), Info: filepath.Join(base, "info")}
}

// Chain tries each mover in turn until one succeeds.
type Chain []Mover

func (c Chain) Move(ctx context.Context, path string) error {
	var errs []error
	for _, m := range c {
		err := m.Move(ctx, path)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Finder asks Finder to delete the file, which keeps "Put Back" working.
type Finder struct {
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewFinder() *Finder {
	return &Finder{run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}}
}

func (f *Finder) Move(ctx context.Context, path string) error {
	script := `tell application "Finder" to delete POSIX file ` + appleScriptString(path)
	out, err := f.run(ctx, "osascript", "-e", script)
	if err != nil {
		return fmt.Errorf("osascript: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// appleScriptString quotes s as an AppleScript string literal. AppleScript
// only knows the \\ and \" escapes; every other byte is passed through.
func appleScriptString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Dir renames paths into a trash directory. When Info is set it also writes
// a freedesktop .trashinfo record so the file manager can restore it.
type Dir struct {
	Files string
	Info  string
	now   func() time.Time
}

func (d *Dir) Move(ctx context.Context, path string) error {
	if err := os.MkdirAll(d.Files, 0o700); err != nil {
		return err
	}
	if d.Info != "" {
		if err := os.MkdirAll(d.Info, 0o700); err != nil {
			return err
		}
	}

	name, info, err := d.reserve(path)
	if err != nil {
		return err
	}
	if err := os.Rename(path, filepath.Join(d.Files, name)); err != nil {
		if info != "" {
			os.Remove(info)
		}
		return err
	}
	return nil
}

// reserve picks a free name in the trash and, for freedesktop trashes,
// claims it by creating the info file exclusively.
func (d *Dir) reserve(path string) (name, infoPath string, err error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	for n := 1; n < 1000; n++ {
		name = base
		if n > 1 {
			name = stem + " " + strconv.Itoa(n) + ext
		}
		if _, err := os.Lstat(filepath.Join(d.Files, name)); err == nil {
			continue
		}
		if d.Info == "" {
			return name, "", nil
		}
		infoPath = filepath.Join(d.Info, name+".trashinfo")
		f, err := os.OpenFile(infoPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		_, err = fmt.Fprintf(f, "[Trash Info]\nPath=%s\nDeletionDate=%s\n", escapePath(path), now().Format("2006-01-02T15:04:05"))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(infoPath)
			return "", "", err
		}
		return name, infoPath, nil
	}
	return "", "", fmt.Errorf("no free trash name for %s", base)
}

// escapePath percent-encodes bytes the trash spec does not allow raw.
func escapePath(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' || c == '-' || c == '_' || c == '.' || c == '~' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
