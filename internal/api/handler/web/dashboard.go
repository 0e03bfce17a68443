// internal/api/handler/web/dashboard.go
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/view"
	"go.uber.org/zap"
)

// DashboardData holds data for the dashboard template
type DashboardData struct {
	Title         string
	BackendURL    string
	PollSeconds   int
	NoticeSeconds int
	Regions       map[string]template.HTML
}

// Dashboard renders the full page with the current content of every region.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	regions := make(map[string]template.HTML, len(view.Regions))
	for _, name := range view.Regions {
		html, err := h.dashboard.Region(name)
		if err != nil {
			h.logger.Error("loading region", zap.String("region", name), zap.Error(err))
			continue
		}
		regions[name] = html
	}

	data := DashboardData{
		Title:         h.opts.Title,
		BackendURL:    h.opts.BackendURL,
		PollSeconds:   seconds(h.opts.PollInterval.Seconds()),
		NoticeSeconds: seconds(h.opts.NoticeInterval.Seconds()),
		Regions:       regions,
	}

	h.render(w, "dashboard.html", data)
}

func seconds(s float64) int {
	if s < 1 {
		return 1
	}
	return int(s)
}

// Fragment serves one region for htmx polling.
func (h *Handler) Fragment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "region")
	html, err := h.dashboard.Region(name)
	if err != nil {
		if errors.Is(err, core.ErrRegionNotFound) {
			http.Error(w, "unknown region: "+name, http.StatusNotFound)
			return
		}
		h.logger.Error("loading region", zap.String("region", name), zap.Error(err))
		http.Error(w, "region unavailable", http.StatusInternalServerError)
		return
	}
	writeHTML(w, html)
}

// Start runs the start action and returns the controls region with the
// notification stack swapped out of band.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", h.dashboard.Start)
}

// Stop runs the stop action. See Start.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "stop", h.dashboard.Stop)
}

// controlResponse is the data for control_response.html.
type controlResponse struct {
	Controls      template.HTML
	Notifications template.HTML
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, action string, run func(context.Context) error) {
	// Outcomes are reported through notifications; the page always gets
	// fresh controls.
	if err := run(r.Context()); err != nil {
		h.logger.Debug("control action failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}

	controls, err := h.dashboard.Region(view.RegionControls)
	if err != nil {
		http.Error(w, "controls unavailable", http.StatusInternalServerError)
		return
	}
	notices, err := h.dashboard.Region(view.RegionNotifications)
	if err != nil {
		http.Error(w, "notifications unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.partials.ExecuteTemplate(w, "control_response.html", controlResponse{
		Controls:      controls,
		Notifications: notices,
	}); err != nil {
		h.logger.Error("render control response", zap.Error(err))
	}
}

// Dismiss removes a notification and returns the remaining stack. An
// already expired notification is not an error for the page.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dashboard.Dismiss(id); err != nil {
		h.logger.Debug("dismiss notification", zap.String("id", id), zap.Error(err))
	}

	html, err := h.dashboard.Region(view.RegionNotifications)
	if err != nil {
		http.Error(w, "notifications unavailable", http.StatusInternalServerError)
		return
	}
	writeHTML(w, html)
}

func writeHTML(w http.ResponseWriter, html template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(html))
}
