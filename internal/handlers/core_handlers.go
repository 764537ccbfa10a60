package handlers

import (
	"net/http"
	"time"
)

// HandleHealth reports engine liveness and the current reconciliation
// debt (counters awaiting a sweep).
func (s *Server) HandleHealth() http.HandlerFunc {
	started := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"uptimeSeconds": int(time.Since(started).Seconds()),
			"dirtyCounters": s.Sync.DirtyCount(),
		})
	}
}
