package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/services"
)

// ActionRequest carries the confirmation token for a destructive action
type ActionRequest struct {
	Token string `json:"token"`
}

// TrashResponse reports a trash batch. Error is set when some paths failed;
// the rest were still moved.
type TrashResponse struct {
	*services.TrashOutcome
	Moved int    `json:"moved"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) confirmed(w http.ResponseWriter, r *http.Request, action string) (ConfirmRequest, bool) {
	var req ActionRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return ConfirmRequest{}, false
	}
	if req.Token == "" {
		req.Token = r.Header.Get("X-Confirm-Token")
	}
	confirmed, ok := h.confirm.consume(req.Token, action, r.PathValue("verb"))
	if !ok {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "action not confirmed"})
		return ConfirmRequest{}, false
	}
	return confirmed, true
}

// Run handles POST /api/run/{verb}: the engine runs for real, streaming
// into the same view a dry run uses.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	req, ok := h.confirmed(w, r, actionRun)
	if !ok {
		return
	}

	token, err := h.scanner.StartScan(req.Verb, services.ScanOptions{Extra: req.Extra})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.WithFields(logrus.Fields{"verb": req.Verb, "token": token}).Info("Confirmed run started")
	writeJSON(w, http.StatusAccepted, StartedScan{Verb: req.Verb, Token: token})
}

// Trash handles POST /api/trash/{verb}. Engine verbs trash the clean-list
// paths behind the confirmed categories; artifacts and installers trash
// the confirmed paths.
func (h *Handler) Trash(w http.ResponseWriter, r *http.Request) {
	req, ok := h.confirmed(w, r, actionTrash)
	if !ok {
		return
	}

	var out *services.TrashOutcome
	var err error
	if isFileVerb(req.Verb) {
		out, err = h.scanner.TrashFound(r.Context(), req.Verb, req.IDs)
	} else {
		out, err = h.scanner.TrashCategories(r.Context(), req.Verb, req.IDs)
	}
	if out == nil {
		h.writeError(w, err)
		return
	}

	resp := TrashResponse{TrashOutcome: out, Moved: out.Moved()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
