// internal/api/handler/api/view.go
package api

import (
	"net/http"

	"github.com/newthinker/botdash/internal/api/response"
	"github.com/newthinker/botdash/internal/dashboard"
)

// SnapshotSource provides the dashboard state.
type SnapshotSource interface {
	Snapshot() dashboard.Snapshot
}

// ViewHandler serves the dashboard state as JSON.
type ViewHandler struct {
	source SnapshotSource
}

// NewViewHandler creates a new view handler.
func NewViewHandler(source SnapshotSource) *ViewHandler {
	return &ViewHandler{source: source}
}

// Get returns the current snapshot.
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.source.Snapshot())
}
