// internal/api/handler/api/health.go
package api

import (
	"net/http"

	"github.com/newthinker/botdash/internal/api/response"
	"github.com/newthinker/botdash/internal/router"
)

// StatsSource reports the forwarding state.
type StatsSource interface {
	GetStats() router.Stats
}

// Health reports liveness along with the last known bot state and, when
// stats is not nil, the forwarding state.
func Health(source SnapshotSource, stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := source.Snapshot()
		body := map[string]any{
			"status":     "ok",
			"bot_state":  s.State,
			"updated_at": s.UpdatedAt,
		}
		if stats != nil {
			body["forwarding"] = stats.GetStats()
		}
		response.JSON(w, http.StatusOK, body)
	}
}
