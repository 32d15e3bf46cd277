package handlers

import (
	"context"
	"net/http"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexStatus reports whether a searchable index is loaded.
type IndexStatus interface {
	Ready() bool
}

type HealthHandler struct {
	index IndexStatus
	db    Pinger
	redis Pinger
}

// NewHealthHandler accepts nil db and redis when those backends are not
// configured.
func NewHealthHandler(ix IndexStatus, db, rdb Pinger) *HealthHandler {
	return &HealthHandler{index: ix, db: db, redis: rdb}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.index.Ready() {
		checks["index"] = "ok"
	} else {
		checks["index"] = "unhealthy: no index loaded"
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]any{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}
