package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/engine"
	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/scheduler"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/status"
)

// Options are the collaborators of a Handler.
type Options struct {
	Config    *config.Config
	Scanner   *services.Scanner
	Runner    engine.Runner
	Resolver  *engine.Resolver
	Status    *status.Collector
	Scheduler *scheduler.Scheduler
	WebFS     fs.FS
	Version   string
	Log       *logrus.Entry
}

// Handler holds all HTTP handlers
type Handler struct {
	cfg       *config.Config
	scanner   *services.Scanner
	runner    engine.Runner
	resolver  *engine.Resolver
	status    *status.Collector
	scheduler *scheduler.Scheduler
	confirm   *confirmations
	tmpl      *template.Template
	staticFS  fs.FS
	version   string
	log       *logrus.Entry
}

// New creates a new Handler
func New(opts Options) (*Handler, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}

	tmpl, err := template.ParseFS(opts.WebFS, "templates/index.html")
	if err != nil {
		return nil, err
	}

	staticFS, err := fs.Sub(opts.WebFS, "static")
	if err != nil {
		return nil, err
	}

	return &Handler{
		cfg:       cfg,
		scanner:   opts.Scanner,
		runner:    opts.Runner,
		resolver:  opts.Resolver,
		status:    opts.Status,
		scheduler: opts.Scheduler,
		confirm:   newConfirmations(),
		tmpl:      tmpl,
		staticFS:  staticFS,
		version:   opts.Version,
		log:       log.WithField("component", "http"),
	}, nil
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))

	mux.HandleFunc("GET /{$}", h.Index)

	// Scans
	mux.HandleFunc("GET /api/scans/{verb}", h.GetScan)
	mux.HandleFunc("POST /api/scans/{verb}", h.StartScan)
	mux.HandleFunc("GET /sse/scans/{verb}", h.ScanEventsSSE)

	// Destructive actions, each gated by a confirmation token
	mux.HandleFunc("POST /api/confirm", h.Confirm)
	mux.HandleFunc("POST /api/run/{verb}", h.Run)
	mux.HandleFunc("POST /api/trash/{verb}", h.Trash)

	// Engine and machine
	mux.HandleFunc("GET /api/engine", h.Engine)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/schedule", h.Schedule)

	// Settings
	mux.HandleFunc("GET /api/settings/whitelist", h.GetWhitelist)
	mux.HandleFunc("PUT /api/settings/whitelist", h.PutWhitelist)
	mux.HandleFunc("GET /api/settings/search-paths", h.GetSearchPaths)
	mux.HandleFunc("PUT /api/settings/search-paths", h.PutSearchPaths)
}

// IndexData holds data for the index template
type IndexData struct {
	Version     string
	EngineVerbs []string
	FileVerbs   []string
	Now         time.Time
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := IndexData{
		Version:     h.version,
		EngineVerbs: parser.Verbs(),
		FileVerbs:   []string{services.VerbArtifacts, services.VerbInstallers},
		Now:         time.Now(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		h.log.WithError(err).Error("Template error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service and engine errors to HTTP status codes.
func statusFor(err error) int {
	var execErr *engine.ExecutionError
	switch {
	case errors.Is(err, engine.ErrEngineNotFound):
		return http.StatusServiceUnavailable
	case errors.As(err, &execErr):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrUnknownVerb), errors.Is(err, services.ErrNoScan):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnknownSelection):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	if code == http.StatusServiceUnavailable {
		body.Hint = engine.InstallHint
	}
	if code >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("status", code).Warn("Request failed")
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func isFileVerb(verb string) bool {
	return verb == services.VerbArtifacts || verb == services.VerbInstallers
}
