package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/rag"
	"github.com/projectsamarth/samarth/internal/session"
)

// Asker is the stateless question-answering surface of *rag.Pipeline.
type Asker interface {
	Ask(ctx context.Context, question string) (*rag.Answer, error)
	AskStream(ctx context.Context, question string) ([]models.Document, <-chan llm.StreamChunk, error)
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

type RAGHandler struct {
	pipeline Asker
}

func NewRAGHandler(p Asker) *RAGHandler {
	return &RAGHandler{pipeline: p}
}

type askRequest struct {
	Question string `json:"question"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

func (h *RAGHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}

	ans, err := h.pipeline.Ask(r.Context(), req.Question)
	if err != nil {
		writeError(w, statusFor(err), session.Describe(err))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// AskStream sends a "sources" event, then answer deltas as data events.
func (h *RAGHandler) AskStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	docs, ch, err := h.pipeline.AskStream(r.Context(), req.Question)
	if err != nil {
		writeError(w, statusFor(err), session.Describe(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sources, _ := json.Marshal(docs)
	fmt.Fprintf(w, "event: sources\ndata: %s\n\n", sources)
	flusher.Flush()

	for chunk := range ch {
		if chunk.Error != nil {
			msg, _ := json.Marshal(map[string]string{"error": session.Describe(chunk.Error)})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", msg)
			flusher.Flush()
			return
		}

		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		if chunk.Done {
			return
		}
	}
}

func (h *RAGHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.K < 0 {
		writeError(w, http.StatusBadRequest, "k must be positive")
		return
	}

	hits, err := h.pipeline.Search(r.Context(), req.Query, req.K)
	if err != nil {
		writeError(w, statusFor(err), session.Describe(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits, "count": len(hits)})
}
