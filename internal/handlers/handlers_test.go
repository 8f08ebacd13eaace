package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/engine"
	"github.com/lyallcooper/moleui/internal/scanner"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/status"
	"github.com/lyallcooper/moleui/internal/types"
)

// mockRunner implements engine.Runner and replays fixed output
type mockRunner struct {
	mu    sync.Mutex
	lines []string
	calls []engine.Invocation
}

func (m *mockRunner) RunBuffered(ctx context.Context, inv engine.Invocation, opts engine.BufferedOptions) (string, error) {
	return strings.Join(m.lines, "\n"), nil
}

func (m *mockRunner) RunStreaming(ctx context.Context, inv engine.Invocation, onLine func(string)) error {
	m.mu.Lock()
	m.calls = append(m.calls, inv)
	lines := m.lines
	m.mu.Unlock()
	for _, l := range lines {
		onLine(l)
	}
	return nil
}

func (m *mockRunner) Version(ctx context.Context) (string, error) {
	return "mole 1.2.0", nil
}

func (m *mockRunner) invocations() []engine.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Invocation(nil), m.calls...)
}

type recordingMover struct {
	mu    sync.Mutex
	moved []string
}

func (r *recordingMover) Move(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved = append(r.moved, path)
	return nil
}

var cleanLines = []string{
	"➤ Browser Caches",
	"→ Chrome cache, 1.20GB dry",
	"➤ Developer Tools",
	"→ Xcode DerivedData, 512MB dry",
	"Potential space: 1.70GB | Items: 2 | Categories: 2",
}

var testFS = fstest.MapFS{
	"templates/index.html": {Data: []byte(`<title>Mole {{.Version}}</title>{{range .EngineVerbs}}<b>{{.}}</b>{{end}}{{range .FileVerbs}}<i>{{.}}</i>{{end}}`)},
	"static/app.js":        {Data: []byte(`console.log("mole")`)},
}

type testEnv struct {
	h      *Handler
	mux    *http.ServeMux
	runner *mockRunner
	mover  *recordingMover
	scan   *services.Scanner
	cfg    *config.Config
	home   string
}

func newTestEnv(t *testing.T, preflight func() error) *testEnv {
	t.Helper()
	home := t.TempDir()
	cfg := config.Defaults()
	cfg.MoleConfigDir = filepath.Join(home, ".config", "mole")

	runner := &mockRunner{lines: cleanLines}
	mover := &recordingMover{}
	s := services.NewScanner(services.Deps{
		Runner:    runner,
		Config:    cfg,
		Mover:     mover,
		Sizer:     scanner.NewSizerFunc(2, func(context.Context, string) (int64, error) { return 2048, nil }, nil),
		Home:      home,
		Preflight: preflight,
	})
	t.Cleanup(s.Close)

	bin := filepath.Join(home, "mole")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	h, err := New(Options{
		Config:   cfg,
		Scanner:  s,
		Runner:   runner,
		Resolver: engine.NewResolver(bin, nil),
		Status:   status.NewCollector(status.Sources{}, nil),
		WebFS:    testFS,
		Version:  "v0.3.0",
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testEnv{h: h, mux: mux, runner: runner, mover: mover, scan: s, cfg: cfg, home: home}
}

func (e *testEnv) do(t *testing.T, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, url, strings.NewReader(string(data)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// scan runs a dry run of verb to completion and returns the view
func (e *testEnv) scanToCompletion(t *testing.T, verb string) services.View {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/scans/"+verb, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started StartedScan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	var view services.View
	require.Eventually(t, func() bool {
		view, _ = e.scan.Snapshot(verb)
		return view.Token == started.Token && view.Status != types.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)
	return view
}

func (e *testEnv) confirm(t *testing.T, req ConfirmRequest) Dialog {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/confirm", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d Dialog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.NotEmpty(t, d.Token)
	return d
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"engine not found", fmt.Errorf("resolve: %w", engine.ErrEngineNotFound), http.StatusServiceUnavailable},
		{"execution failure", &engine.ExecutionError{Verb: "clean", Err: errors.New("exit status 1")}, http.StatusBadGateway},
		{"timeout", &engine.ExecutionError{Verb: "clean", Err: engine.ErrTimeout}, http.StatusBadGateway},
		{"unknown verb", fmt.Errorf("%w: defrag", services.ErrUnknownVerb), http.StatusNotFound},
		{"no scan", services.ErrNoScan, http.StatusNotFound},
		{"bad selection", services.ErrUnknownSelection, http.StatusConflict},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestIndexAndStatic(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Mole v0.3.0")
	assert.Contains(t, body, "<b>clean</b>")
	assert.Contains(t, body, "<i>artifacts</i>")

	rec = env.do(t, http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mole")

	rec = env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndGetScan(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/scans/clean", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	view := env.scanToCompletion(t, "clean")
	assert.Equal(t, types.StatusCompleted, view.Status)

	rec = env.do(t, http.MethodGet, "/api/scans/clean", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got services.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Categories, 2)
	assert.Equal(t, "Browser Caches", got.Categories[0].Name)
	assert.True(t, got.DryRun)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.ItemCount)

	calls := env.runner.invocations()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].DryRun, "previews must be dry runs")
}

func TestStartScanErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/scans/defrag", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	missing := newTestEnv(t, func() error {
		return fmt.Errorf("%w (searched /opt/homebrew/bin/mole)", engine.ErrEngineNotFound)
	})
	rec = missing.do(t, http.MethodPost, "/api/scans/clean", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, engine.InstallHint, body.Hint)
}

func TestRunRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/run/clean", ActionRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.scanToCompletion(t, "clean")
	dialog := env.confirm(t, ConfirmRequest{Action: actionRun, Verb: "clean"})
	assert.Equal(t, "Clean", dialog.PrimaryAction)
	assert.Contains(t, dialog.Message, "2 items")
	assert.Contains(t, dialog.Message, "1.7GB")

	// A token for another verb does not carry over
	other := env.confirm(t, ConfirmRequest{Action: actionRun, Verb: "optimize"})
	rec = env.do(t, http.MethodPost, "/api/run/clean", ActionRequest{Token: other.Token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/run/clean", ActionRequest{Token: dialog.Token})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool { return len(env.runner.invocations()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, env.runner.invocations()[1].DryRun)

	// Tokens are one-shot
	rec = env.do(t, http.MethodPost, "/api/run/clean", ActionRequest{Token: dialog.Token})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConfirmTokenHeaderAndExpiry(t *testing.T) {
	env := newTestEnv(t, nil)

	dialog := env.confirm(t, ConfirmRequest{Action: actionRun, Verb: "optimize"})
	assert.Contains(t, dialog.Message, "without a preview")

	now := time.Now()
	env.h.confirm.now = func() time.Time { return now.Add(confirmMaxAge + time.Minute) }

	req := httptest.NewRequest(http.MethodPost, "/api/run/optimize", nil)
	req.Header.Set("X-Confirm-Token", dialog.Token)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.h.confirm.now = time.Now
	dialog = env.confirm(t, ConfirmRequest{Action: actionRun, Verb: "optimize"})
	req = httptest.NewRequest(http.MethodPost, "/api/run/optimize", nil)
	req.Header.Set("X-Confirm-Token", dialog.Token)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestConfirmRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Action: "format", Verb: "clean"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Action: actionRun, Verb: "defrag"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Action: actionTrash, Verb: "clean"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Action: actionTrash, Verb: "clean", IDs: []string{"x"}})
	assert.Equal(t, http.StatusNotFound, rec.Code, "no scan yet")

	env.scanToCompletion(t, "clean")
	rec = env.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Action: actionTrash, Verb: "clean", IDs: []string{"x"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTrashCategories(t *testing.T) {
	env := newTestEnv(t, nil)

	cache := filepath.Join(env.home, "Library", "Caches", "Google")
	require.NoError(t, os.MkdirAll(cache, 0o755))
	require.NoError(t, os.MkdirAll(env.cfg.MoleConfigDir, 0o755))
	require.NoError(t, os.WriteFile(env.cfg.CleanListPath(),
		[]byte("=== Browser Caches ===\n"+cache+"\n"), 0o644))

	view := env.scanToCompletion(t, "clean")
	id := view.Categories[0].ID

	dialog := env.confirm(t, ConfirmRequest{Action: actionTrash, Verb: "clean", IDs: []string{id}})
	assert.Equal(t, "Move to Trash", dialog.Title)
	assert.Contains(t, dialog.Message, "1 selected category")
	assert.Contains(t, dialog.Message, "1.2GB")

	rec := env.do(t, http.MethodPost, "/api/trash/clean", ActionRequest{Token: dialog.Token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Moved   int `json:"moved"`
		Results []struct {
			Path string `json:"path"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Moved)
	assert.Equal(t, []string{cache}, env.mover.moved)
}

func TestTrashFoundInstallers(t *testing.T) {
	env := newTestEnv(t, nil)

	downloads := filepath.Join(env.home, "Downloads")
	require.NoError(t, os.MkdirAll(downloads, 0o755))
	dmg := filepath.Join(downloads, "Tool.dmg")
	require.NoError(t, os.WriteFile(dmg, make([]byte, 4096), 0o644))

	view := env.scanToCompletion(t, services.VerbInstallers)
	require.Len(t, view.Found, 1)

	dialog := env.confirm(t, ConfirmRequest{Action: actionTrash, Verb: services.VerbInstallers, IDs: []string{view.Found[0].ID}})
	assert.Contains(t, dialog.Message, "1 selected item")

	rec := env.do(t, http.MethodPost, "/api/trash/installers", ActionRequest{Token: dialog.Token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{dmg}, env.mover.moved)
}

func TestWhitelistSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/settings/whitelist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"patterns":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/settings/whitelist", WhitelistBody{Patterns: []string{" ~/Projects/keep/* ", "", "*.keep"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/settings/whitelist", nil)
	assert.JSONEq(t, `{"patterns":["~/Projects/keep/*","*.keep"]}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/settings/whitelist", WhitelistBody{Patterns: []string{"[bad"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchPathSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	code := filepath.Join(env.home, "Code")
	require.NoError(t, os.MkdirAll(code, 0o755))
	file := filepath.Join(env.home, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name  string
		paths []string
		want  int
	}{
		{"missing", []string{filepath.Join(env.home, "nope")}, http.StatusBadRequest},
		{"file", []string{file}, http.StatusBadRequest},
		{"relative", []string{"Code"}, http.StatusBadRequest},
		{"valid with duplicate", []string{code, code + "/"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/settings/search-paths", SearchPathsBody{Paths: tt.paths})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := env.do(t, http.MethodGet, "/api/settings/search-paths", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body SearchPathsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{code}, body.Paths)
}

func TestEngineStatusAndSchedule(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/engine", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info EngineInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "mole 1.2.0", info.Version)
	assert.Equal(t, filepath.Join(env.home, "mole"), info.Path)

	rec = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cores"`)

	rec = env.do(t, http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestScanEventsSSE(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/scans/clean", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}

	event, _ := readEvent()
	require.Equal(t, "snapshot", event)

	_, err = env.scan.StartScan("clean", services.ScanOptions{DryRun: true})
	require.NoError(t, err)

	var kinds []string
	for {
		event, data := readEvent()
		if event == "complete" {
			assert.Contains(t, data, types.StatusCompleted)
			break
		}
		require.Equal(t, "update", event)
		var u types.ScanUpdate
		require.NoError(t, json.Unmarshal([]byte(data), &u))
		if u.Event != nil {
			kinds = append(kinds, u.Event.Kind.String())
		}
	}
	assert.Contains(t, kinds, "category-opened")
	assert.Contains(t, kinds, "item-appended")
	assert.Contains(t, kinds, "summary-set")
}
