package index

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Handle is the shared, read-only view of the live index. Sessions search
// through it while a rebuild swaps in a replacement.
type Handle struct {
	current atomic.Pointer[Index]
}

func NewHandle(ix *Index) *Handle {
	h := &Handle{}
	if ix != nil {
		h.current.Store(ix)
	}
	return h
}

// Current returns the live index or nil.
func (h *Handle) Current() *Index { return h.current.Load() }

// Swap installs ix and returns the previous index.
func (h *Handle) Swap(ix *Index) *Index { return h.current.Swap(ix) }

// Reload loads path and swaps it in. On failure the live index is kept.
func (h *Handle) Reload(path string, expect Expect) (Meta, error) {
	ix, err := Load(path, expect)
	if err != nil {
		return Meta{}, err
	}
	h.Swap(ix)
	slog.Info("index reloaded", "path", path, "documents", ix.meta.Count, "model", ix.meta.Model)
	return ix.meta, nil
}

func (h *Handle) Ready() bool { return h.current.Load() != nil }

func (h *Handle) Stats() (Meta, bool) {
	ix := h.current.Load()
	if ix == nil {
		return Meta{}, false
	}
	return ix.meta, true
}

func (h *Handle) SimilaritySearch(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ix := h.current.Load()
	if ix == nil {
		return nil, unavailable("", "no index loaded", nil)
	}
	return ix.Search(query, k)
}
