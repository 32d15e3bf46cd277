package handlers

import (
	"errors"
	"net/http"

	"github.com/projectsamarth/samarth/internal/auth"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/queue"
)

type AdminHandler struct {
	handle    *index.Handle
	enqueuer  queue.Enqueuer
	indexPath string
	expect    index.Expect
}

// NewAdminHandler accepts a nil enqueuer when no Redis is configured;
// rebuild requests are then refused.
func NewAdminHandler(h *index.Handle, enq queue.Enqueuer, indexPath string, expect index.Expect) *AdminHandler {
	return &AdminHandler{handle: h, enqueuer: enq, indexPath: indexPath, expect: expect}
}

func (h *AdminHandler) IndexStats(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.handle.Stats()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no index loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": h.indexPath, "index": meta})
}

func (h *AdminHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured; run `samarth index build` instead")
		return
	}

	payload := queue.IndexBuildPayload{Reason: "api"}
	if c := auth.ClaimsFromContext(r.Context()); c != nil {
		payload.RequestedBy = c.Subject
	}

	id, err := h.enqueuer.EnqueueIndexBuild(payload)
	if errors.Is(err, queue.ErrBuildPending) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "queued"})
}

// Reload swaps in the index file on disk. The current index stays live if
// the file cannot be loaded.
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	meta, err := h.handle.Reload(h.indexPath, h.expect)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": h.indexPath, "index": meta})
}
