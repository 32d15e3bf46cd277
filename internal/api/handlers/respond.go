package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/rag"
	"github.com/projectsamarth/samarth/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		unavail *index.IndexUnavailableError
		rerr    *rag.RetrievalError
		serr    *rag.SynthesisError
	)
	switch {
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, index.ErrInvalidK):
		return http.StatusBadRequest
	case errors.As(err, &unavail):
		return http.StatusServiceUnavailable
	case errors.As(err, &rerr), errors.As(err, &serr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
