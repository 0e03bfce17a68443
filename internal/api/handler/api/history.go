// internal/api/handler/api/history.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/botdash/internal/api/response"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/storage/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves the recorded signal history.
type HistoryHandler struct {
	store history.Store
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// HistoryPage is one page of history entries.
type HistoryPage struct {
	Entries []history.Entry `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// List handles GET /api/signals/history?type=&from=&to=&limit=&offset=
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	countFilter := filter
	countFilter.Limit, countFilter.Offset = 0, 0
	total, err := h.store.Count(r.Context(), countFilter)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, HistoryPage{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// Get handles GET /api/signals/history/{key}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

func parseHistoryFilter(r *http.Request) (history.ListFilter, error) {
	q := r.URL.Query()
	filter := history.ListFilter{Limit: defaultHistoryLimit}

	if t := strings.ToUpper(q.Get("type")); t != "" {
		switch core.SignalType(t) {
		case core.SignalLong, core.SignalShort:
			filter.Type = core.SignalType(t)
		default:
			return filter, invalidQuery("type must be LONG or SHORT, got %q", q.Get("type"))
		}
	}

	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		return filter, invalidQuery("from: %v", err)
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		return filter, invalidQuery("to: %v", err)
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return filter, invalidQuery("limit must be between 1 and %d", maxHistoryLimit)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, invalidQuery("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func invalidQuery(format string, args ...any) error {
	return core.WrapError(core.ErrInvalidQuery, fmt.Errorf(format, args...))
}
