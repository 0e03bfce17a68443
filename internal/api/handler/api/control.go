// internal/api/handler/api/control.go
package api

import (
	"context"
	"net/http"

	"github.com/newthinker/botdash/internal/api/response"
	"github.com/newthinker/botdash/internal/dashboard"
)

// Controls starts and stops the bot.
type Controls interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() dashboard.State
}

// ControlHandler exposes start/stop as JSON endpoints.
type ControlHandler struct {
	controls Controls
}

// NewControlHandler creates a new control handler.
func NewControlHandler(c Controls) *ControlHandler {
	return &ControlHandler{controls: c}
}

// Start runs the start action.
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.controls.Start)
}

// Stop runs the stop action.
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.controls.Stop)
}

func (h *ControlHandler) run(w http.ResponseWriter, r *http.Request, action func(context.Context) error) {
	if err := action(r.Context()); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"state": h.controls.State().String(),
	})
}
