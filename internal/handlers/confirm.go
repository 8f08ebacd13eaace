package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/services"
	"github.com/lyallcooper/moleui/internal/sizes"
)

const (
	confirmTokenLen = 32
	confirmMaxAge   = 10 * time.Minute

	actionRun   = "run"
	actionTrash = "trash"
)

// ConfirmRequest names the destructive action the client wants to perform.
type ConfirmRequest struct {
	Action string   `json:"action"`
	Verb   string   `json:"verb"`
	IDs    []string `json:"ids,omitempty"`
	Extra  []string `json:"extra,omitempty"`
}

// Dialog is what the client shows before a destructive action. Token must
// accompany the action request and works once.
type Dialog struct {
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	PrimaryAction string    `json:"primaryAction"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type pendingAction struct {
	req    ConfirmRequest
	expiry time.Time
}

// confirmations tracks issued tokens until they are used or expire
type confirmations struct {
	mu      sync.Mutex
	pending map[string]pendingAction
	maxAge  time.Duration
	now     func() time.Time
}

func newConfirmations() *confirmations {
	return &confirmations{
		pending: make(map[string]pendingAction),
		maxAge:  confirmMaxAge,
		now:     time.Now,
	}
}

// issue stores req under a new random token
func (c *confirmations) issue(req ConfirmRequest) (string, time.Time, error) {
	buf := make([]byte, confirmTokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}
	token := base64.URLEncoding.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	expiry := c.now().Add(c.maxAge)
	c.pending[token] = pendingAction{req: req, expiry: expiry}
	return token, expiry, nil
}

// consume returns the confirmed request for token and forgets the token.
// It fails for unknown or expired tokens, and for tokens issued for a
// different action or verb.
func (c *confirmations) consume(token, action, verb string) (ConfirmRequest, bool) {
	if token == "" {
		return ConfirmRequest{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[token]
	if !ok {
		return ConfirmRequest{}, false
	}
	delete(c.pending, token)
	if c.now().After(p.expiry) || p.req.Action != action || p.req.Verb != verb {
		return ConfirmRequest{}, false
	}
	return p.req, true
}

// cleanupLocked removes expired tokens
func (c *confirmations) cleanupLocked() {
	now := c.now()
	for token, p := range c.pending {
		if now.After(p.expiry) {
			delete(c.pending, token)
		}
	}
}

// Confirm handles POST /api/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var dialog Dialog
	switch req.Action {
	case actionRun:
		if _, err := parser.ForVerb(req.Verb); err != nil {
			h.writeError(w, fmt.Errorf("%w: %s", services.ErrUnknownVerb, req.Verb))
			return
		}
		dialog = h.runDialog(req)
	case actionTrash:
		if len(req.IDs) == 0 {
			badRequest(w, "nothing selected")
			return
		}
		d, err := h.trashDialog(req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		dialog = d
	default:
		badRequest(w, "unknown action: "+req.Action)
		return
	}

	token, expiry, err := h.confirm.issue(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dialog.Token = token
	dialog.ExpiresAt = expiry
	writeJSON(w, http.StatusOK, dialog)
}

var runTitles = map[string][2]string{
	"clean":     {"Clean Up Mac", "Clean"},
	"optimize":  {"Optimize System", "Optimize"},
	"purge":     {"Purge Project Artifacts", "Purge"},
	"uninstall": {"Uninstall Apps", "Uninstall"},
}

func (h *Handler) runDialog(req ConfirmRequest) Dialog {
	labels, ok := runTitles[req.Verb]
	if !ok {
		labels = [2]string{"Run mole " + req.Verb, "Run"}
	}
	d := Dialog{Title: labels[0], PrimaryAction: labels[1]}

	view, ok := h.scanner.Snapshot(req.Verb)
	switch {
	case ok && view.DryRun && view.ItemCount > 0:
		d.Message = fmt.Sprintf("Mole will act on %s %s across %s %s found by the last preview",
			humanize.Comma(int64(view.ItemCount)), plural(view.ItemCount, "item", "items"),
			humanize.Comma(int64(len(view.Categories))), plural(len(view.Categories), "category", "categories"))
		if view.TotalSize != nil {
			d.Message += fmt.Sprintf(" (%s)", sizes.Format(*view.TotalSize))
		}
		d.Message += ". This cannot be undone."
	default:
		d.Message = fmt.Sprintf("Mole will run %s without a preview. This cannot be undone.", req.Verb)
	}
	return d
}

func (h *Handler) trashDialog(req ConfirmRequest) (Dialog, error) {
	view, ok := h.scanner.Snapshot(req.Verb)
	if !ok {
		return Dialog{}, fmt.Errorf("%w for %s", services.ErrNoScan, req.Verb)
	}

	var total int64
	known := false
	count := 0
	add := func(size *int64) {
		count++
		if size != nil {
			total += *size
			known = true
		}
	}

	selected := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		selected[id] = true
	}
	if isFileVerb(req.Verb) {
		for _, f := range view.Found {
			if selected[f.ID] {
				add(f.SizeBytes)
			}
		}
	} else {
		for _, c := range view.Categories {
			if selected[c.ID] {
				add(c.TotalSize)
			}
		}
	}
	if count != len(selected) {
		return Dialog{}, fmt.Errorf("%w for %s", services.ErrUnknownSelection, req.Verb)
	}

	noun := plural(count, "item", "items")
	if !isFileVerb(req.Verb) {
		noun = plural(count, "category", "categories")
	}
	msg := fmt.Sprintf("Move %s selected %s", humanize.Comma(int64(count)), noun)
	if known {
		msg += fmt.Sprintf(" (%s)", sizes.Format(total))
	}
	msg += " to the Trash?"
	return Dialog{Title: "Move to Trash", Message: msg, PrimaryAction: "Move to Trash"}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
