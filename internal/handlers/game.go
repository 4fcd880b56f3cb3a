// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/sirupsen/logrus"
)

// SessionLister is implemented by server.Hub.
type SessionLister interface {
	Sessions() []game.Summary
	Session(id uuid.UUID) (game.Summary, bool)
}

// ListSessionsHandler answers GET /sessions with a JSON array of live session summaries.
// Summaries never contain hands.
func ListSessionsHandler(logger *logrus.Logger, lister SessionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(logger, w, lister.Sessions())
	}
}

// GetSessionHandler answers GET /sessions/{id} with one session summary.
func GetSessionHandler(logger *logrus.Logger, lister SessionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		sum, ok := lister.Session(id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		writeJSON(logger, w, sum)
	}
}

// HealthHandler answers GET /health.
func HealthHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Warnf("Failed to write health response: %v", err)
		}
	}
}

func writeJSON(logger *logrus.Logger, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}
