package handlers

import (
	"fmt"
	"net/http"

	"github.com/lyallcooper/moleui/internal/services"
)

// StartScanRequest is the optional body of POST /api/scans/{verb}
type StartScanRequest struct {
	Details bool     `json:"details"`
	Extra   []string `json:"extra,omitempty"`
}

// StartedScan is returned when a scan is accepted
type StartedScan struct {
	Verb  string `json:"verb"`
	Token uint64 `json:"token"`
}

// GetScan handles GET /api/scans/{verb}
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	verb := r.PathValue("verb")
	view, ok := h.scanner.Snapshot(verb)
	if !ok {
		h.writeError(w, fmt.Errorf("%w for %s", services.ErrNoScan, verb))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// StartScan handles POST /api/scans/{verb}. Engine verbs start a dry run;
// artifacts and installers start a filesystem scan.
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	verb := r.PathValue("verb")

	var req StartScanRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var token uint64
	var err error
	switch verb {
	case services.VerbArtifacts:
		token, err = h.scanner.StartArtifactScan()
	case services.VerbInstallers:
		token, err = h.scanner.StartInstallerScan()
	default:
		token, err = h.scanner.StartScan(verb, services.ScanOptions{
			DryRun:  true,
			Details: req.Details,
			Extra:   req.Extra,
		})
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StartedScan{Verb: verb, Token: token})
}
