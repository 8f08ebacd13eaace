package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/engine"
	"github.com/lyallcooper/moleui/internal/scheduler"
)

// WhitelistBody is the JSON shape of the whitelist setting
type WhitelistBody struct {
	Patterns []string `json:"patterns"`
}

// SearchPathsBody is the JSON shape of the custom search paths setting
type SearchPathsBody struct {
	Paths []string `json:"paths"`
}

// EngineInfo describes the resolved engine
type EngineInfo struct {
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
	UI      string `json:"ui"`
}

// GetWhitelist handles GET /api/settings/whitelist
func (h *Handler) GetWhitelist(w http.ResponseWriter, r *http.Request) {
	wl, err := config.LoadWhitelist(h.cfg.WhitelistPath())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WhitelistBody{Patterns: nonNil(wl.Patterns)})
}

// PutWhitelist handles PUT /api/settings/whitelist
func (h *Handler) PutWhitelist(w http.ResponseWriter, r *http.Request) {
	var body WhitelistBody
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var patterns []string
	for _, p := range body.Patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			badRequest(w, "invalid pattern: "+p)
			return
		}
		patterns = append(patterns, p)
	}

	wl := &config.Whitelist{Patterns: patterns}
	if err := wl.Save(h.cfg.WhitelistPath()); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.WithField("patterns", len(patterns)).Info("Whitelist saved")
	writeJSON(w, http.StatusOK, WhitelistBody{Patterns: nonNil(patterns)})
}

// GetSearchPaths handles GET /api/settings/search-paths
func (h *Handler) GetSearchPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := config.LoadSearchPaths(h.cfg.SearchPathsPath())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchPathsBody{Paths: nonNil(paths)})
}

// PutSearchPaths handles PUT /api/settings/search-paths. Every path must be
// an existing directory.
func (h *Handler) PutSearchPaths(w http.ResponseWriter, r *http.Request) {
	var body SearchPathsBody
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	seen := make(map[string]bool)
	var paths []string
	for _, raw := range body.Paths {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		path := config.ExpandPath(raw)
		if !filepath.IsAbs(path) {
			badRequest(w, "path must be absolute: "+raw)
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			badRequest(w, "path does not exist: "+raw)
			return
		}
		if !info.IsDir() {
			badRequest(w, "path is not a directory: "+raw)
			return
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}

	if err := config.SaveSearchPaths(h.cfg.SearchPathsPath(), paths); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.WithField("paths", len(paths)).Info("Search paths saved")
	writeJSON(w, http.StatusOK, SearchPathsBody{Paths: nonNil(paths)})
}

// Engine handles GET /api/engine
func (h *Handler) Engine(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		h.writeError(w, engine.ErrEngineNotFound)
		return
	}
	path, err := h.resolver.Resolve()
	if err != nil {
		h.writeError(w, err)
		return
	}

	info := EngineInfo{Path: path, UI: h.version}
	if h.runner != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if version, err := h.runner.Version(ctx); err == nil {
			info.Version = version
		}
	}
	writeJSON(w, http.StatusOK, info)
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, h.status.Collect(ctx))
}

// Schedule handles GET /api/schedule
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobInfo{}
	if h.scheduler != nil {
		jobs = append(jobs, h.scheduler.Jobs()...)
	}
	writeJSON(w, http.StatusOK, jobs)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
