package trash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestDirMoveWritesInfo(t *testing.T) {
	home := t.TempDir()
	src := filepath.Join(home, "work", "my cache.log")
	touch(t, src)

	d := &Dir{
		Files: filepath.Join(home, "Trash", "files"),
		Info:  filepath.Join(home, "Trash", "info"),
		now:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	require.NoError(t, d.Move(context.Background(), src))

	assert.NoFileExists(t, src)
	assert.FileExists(t, filepath.Join(d.Files, "my cache.log"))
	info, err := os.ReadFile(filepath.Join(d.Info, "my cache.log.trashinfo"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "Path="+strings.ReplaceAll(src, " ", "%20"))
	assert.Contains(t, string(info), "DeletionDate=2026-01-02T03:04:05")
}

func TestDirMoveNameCollision(t *testing.T) {
	home := t.TempDir()
	d := &Dir{Files: filepath.Join(home, ".Trash")}

	for _, dir := range []string{"a", "b", "c"} {
		p := filepath.Join(home, dir, "report.txt")
		touch(t, p)
		require.NoError(t, d.Move(context.Background(), p))
	}

	for _, name := range []string{"report.txt", "report 2.txt", "report 3.txt"} {
		assert.FileExists(t, filepath.Join(d.Files, name))
	}
}

type fakeMover struct {
	fail  map[string]bool
	moved []string
}

func (f *fakeMover) Move(_ context.Context, path string) error {
	if f.fail[path] {
		return errors.New("denied")
	}
	f.moved = append(f.moved, path)
	return nil
}

func TestPathsIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	ok1 := filepath.Join(dir, "one")
	bad := filepath.Join(dir, "two")
	ok2 := filepath.Join(dir, "three")
	for _, p := range []string{ok1, bad, ok2} {
		touch(t, p)
	}
	missing := filepath.Join(dir, "missing")

	m := &fakeMover{fail: map[string]bool{bad: true}}
	results, err := Paths(context.Background(), m, []string{ok1, bad, "relative/path", missing, ok2})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrashFailed)
	require.Len(t, results, 5)
	assert.True(t, results[0].OK())
	assert.Contains(t, results[1].Error, "denied")
	assert.Contains(t, results[2].Error, "not absolute")
	assert.False(t, results[3].OK())
	assert.True(t, results[4].OK())
	assert.Equal(t, []string{ok1, ok2}, m.moved)
}

func TestPathsAllSucceed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	touch(t, p)
	results, err := Paths(context.Background(), &fakeMover{}, []string{p})
	require.NoError(t, err)
	assert.Equal(t, []Result{{Path: p}}, results)
}

func TestChainFallsBack(t *testing.T) {
	first := &fakeMover{fail: map[string]bool{"/x": true}}
	second := &fakeMover{}
	require.NoError(t, Chain{first, second}.Move(context.Background(), "/x"))
	assert.Equal(t, []string{"/x"}, second.moved)

	err := Chain{first, &fakeMover{fail: map[string]bool{"/x": true}}}.Move(context.Background(), "/x")
	assert.Error(t, err)
}

func TestFinderScript(t *testing.T) {
	var gotName string
	var gotArgs []string
	f := &Finder{run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}}
	require.NoError(t, f.Move(context.Background(), `/Users/me/a "b".dmg`))
	assert.Equal(t, "osascript", gotName)
	assert.Equal(t, []string{"-e", `tell application "Finder" to delete POSIX file "/Users/me/a \"b\".dmg"`}, gotArgs)

	f.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Finder got an error\n"), errors.New("exit status 1")
	}
	err := f.Move(context.Background(), "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Finder got an error")
}

func TestAppleScriptString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/Users/me/a.dmg", `"/Users/me/a.dmg"`},
		{"quote", `/Users/me/a "b".dmg`, `"/Users/me/a \"b\".dmg"`},
		{"backslash", `/Users/me/a\b`, `"/Users/me/a\\b"`},
		{"tab kept raw", "/Users/me/a\tb", "\"/Users/me/a\tb\""},
		{"unicode kept raw", "/Users/me/Café ☕.pkg", `"/Users/me/Café ☕.pkg"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appleScriptString(tt.in))
		})
	}
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "/home/me/a%20b%25.txt", escapePath("/home/me/a b%.txt"))
}
