package session

import (
	"sync"

	"github.com/projectsamarth/samarth/internal/models"
)

// History is an append-only, in-memory conversation log.
type History struct {
	mu    sync.RWMutex
	turns []models.Turn
}

func (h *History) Append(t models.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
}

// Turns returns a copy of the log, oldest first.
func (h *History) Turns() []models.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
