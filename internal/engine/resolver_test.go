package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchExec(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), mode))
	return p
}

func TestResolver_CandidateOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "missing")
	second := touchExec(t, dir, "second", 0o755)
	third := touchExec(t, dir, "third", 0o755)

	r := NewResolver("", []string{first, second, third})
	r.lookPath = nil

	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestResolver_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	override := touchExec(t, dir, "override", 0o755)
	candidate := touchExec(t, dir, "candidate", 0o755)

	r := NewResolver(override, []string{candidate})
	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, override, got)
}

func TestResolver_SkipsNonExecutableAndDirs(t *testing.T) {
	dir := t.TempDir()
	plain := touchExec(t, dir, "plain", 0o644)
	sub := filepath.Join(dir, "subdir")
	require.NoError(t, os.Mkdir(sub, 0o755))

	r := NewResolver("", []string{plain, sub})
	r.lookPath = func(string) (string, error) { return "/found/on/path/mole", nil }

	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "/found/on/path/mole", got)
}

func TestResolver_Memoizes(t *testing.T) {
	dir := t.TempDir()
	bin := touchExec(t, dir, "mole", 0o755)

	r := NewResolver("", []string{bin})
	r.lookPath = nil
	_, err := r.Resolve()
	require.NoError(t, err)

	require.NoError(t, os.Remove(bin))
	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, bin, got)
	assert.Equal(t, bin, r.Cached())
}

func TestResolver_NotFoundIsRetried(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mole")

	lookups := 0
	r := NewResolver("", []string{bin})
	r.lookPath = func(string) (string, error) {
		lookups++
		return "", errors.New("not on path")
	}

	_, err := r.Resolve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineNotFound))
	assert.Equal(t, "", r.Cached())

	touchExec(t, dir, "mole", 0o755)
	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, bin, got)
	assert.Equal(t, 1, lookups)
}

func TestDefaultCandidates(t *testing.T) {
	c := DefaultCandidates("/Users/me")
	assert.Equal(t, "/opt/homebrew/bin/mole", c[0])
	assert.Contains(t, c, "/Users/me/.local/bin/mole")

	assert.Len(t, DefaultCandidates(""), 2)
}
