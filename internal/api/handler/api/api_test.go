// internal/api/handler/api/api_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/botdash/internal/api/response"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/dashboard"
	"github.com/newthinker/botdash/internal/router"
)

type stubControls struct {
	state    dashboard.State
	startErr error
	stopErr  error
}

func (s *stubControls) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.state = dashboard.StateRunning
	return nil
}

func (s *stubControls) Stop(ctx context.Context) error {
	if s.stopErr != nil {
		return s.stopErr
	}
	s.state = dashboard.StateStopped
	return nil
}

func (s *stubControls) State() dashboard.State { return s.state }

type stubSource struct {
	snap dashboard.Snapshot
}

func (s stubSource) Snapshot() dashboard.Snapshot { return s.snap }

func TestControlHandler_Start(t *testing.T) {
	h := NewControlHandler(&stubControls{})

	req := httptest.NewRequest("POST", "/api/control/start", nil)
	w := httptest.NewRecorder()
	h.Start(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp.Data.(map[string]any)
	if data["state"] != "running" {
		t.Errorf("expected running, got %v", data["state"])
	}
}

func TestControlHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		controls *stubControls
		stop     bool
		wantCode int
		wantErr  string
	}{
		{
			name:     "already running",
			controls: &stubControls{startErr: core.ErrAlreadyRunning},
			wantCode: http.StatusConflict,
			wantErr:  "ALREADY_RUNNING",
		},
		{
			name:     "not running",
			controls: &stubControls{stopErr: core.ErrNotRunning},
			stop:     true,
			wantCode: http.StatusConflict,
			wantErr:  "NOT_RUNNING",
		},
		{
			name: "backend rejected",
			controls: &stubControls{startErr: core.WrapError(core.ErrBackendStatus,
				&core.StatusError{StatusCode: 400, Message: "X"})},
			wantCode: http.StatusBadGateway,
			wantErr:  "BACKEND_STATUS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewControlHandler(tt.controls)
			w := httptest.NewRecorder()
			if tt.stop {
				h.Stop(w, httptest.NewRequest("POST", "/api/control/stop", nil))
			} else {
				h.Start(w, httptest.NewRequest("POST", "/api/control/start", nil))
			}

			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
			var resp response.ErrorResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error.Code != tt.wantErr {
				t.Errorf("expected %s, got %s", tt.wantErr, resp.Error.Code)
			}
		})
	}
}

func TestViewHandler_Get(t *testing.T) {
	src := stubSource{snap: dashboard.Snapshot{
		State:      "running",
		Running:    true,
		ErrorCount: 2,
		Signals:    []core.Signal{{Type: core.SignalLong, Entry: 100.5}},
	}}
	h := NewViewHandler(src)

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest("GET", "/api/view", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp.Data.(map[string]any)
	if data["state"] != "running" || data["error_count"] != float64(2) {
		t.Errorf("unexpected snapshot %v", data)
	}
	signals := data["signals"].([]any)
	if len(signals) != 1 {
		t.Errorf("expected 1 signal, got %d", len(signals))
	}
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(stubSource{snap: dashboard.Snapshot{State: "stopped"}}, nil)(w, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp.Data.(map[string]any)
	if data["status"] != "ok" || data["bot_state"] != "stopped" {
		t.Errorf("unexpected health %v", data)
	}
}

type stubStats struct{}

func (stubStats) GetStats() router.Stats {
	return router.Stats{CooldownsActive: 2, ForwardSignals: true, NoticeLevels: []string{"danger"}, Notifiers: []string{"webhook"}}
}

func TestHealth_Forwarding(t *testing.T) {
	w := httptest.NewRecorder()
	Health(stubSource{}, stubStats{})(w, httptest.NewRequest("GET", "/api/health", nil))

	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp.Data.(map[string]any)
	fwd, ok := data["forwarding"].(map[string]any)
	if !ok {
		t.Fatalf("expected forwarding stats, got %v", data)
	}
	if fwd["cooldowns_active"] != float64(2) || fwd["forward_signals"] != true {
		t.Errorf("unexpected forwarding stats %v", fwd)
	}
}
