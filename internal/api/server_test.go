// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/newthinker/botdash/internal/api/response"
	"github.com/newthinker/botdash/internal/botapi"
	"github.com/newthinker/botdash/internal/dashboard"
	"github.com/newthinker/botdash/internal/metrics"
	"github.com/newthinker/botdash/internal/notifier"
	"github.com/newthinker/botdash/internal/router"
	"github.com/newthinker/botdash/internal/storage/history"
	"github.com/newthinker/botdash/internal/view"
	"go.uber.org/zap"
)

// newBotBackend fakes the trading bot API.
func newBotBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/start_bot", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/stop_bot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bot is busy"}`))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"running": false, "error_count": 3}`))
	})
	mux.HandleFunc("/api/current_price", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 67432.1, "change_24h": 1.5, "ema_13": 1, "ema_55": 2, "atr": 3}`))
	})
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"signals": [{"timestamp": "2026-10-17T09:30:00", "type": "SHORT", "entry": 67500, "stop_loss": 68000, "take_profit": 66000, "atr": 250}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) (*Server, *dashboard.Controller) {
	t.Helper()
	backend := newBotBackend(t)

	renderer, err := view.NewRenderer(view.DefaultFormatter())
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	reg := metrics.NewRegistry()
	store := history.NewMemoryStore(10)
	ctrl, err := dashboard.New(botapi.New(backend.URL), renderer, dashboard.DefaultOptions(),
		dashboard.WithRecorder(reg), dashboard.WithHistory(store))
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}

	srv, err := NewServer(Config{
		Host:           "localhost",
		Port:           0,
		BackendURL:     backend.URL,
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}, Dependencies{
		Dashboard: ctrl,
		Metrics:   reg,
		History:   store,
		Router:    router.New(router.DefaultConfig(), notifier.NewRegistry(), nil),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, ctrl
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer_RequiresDashboard(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without a dashboard")
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, "GET", "/api/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header from logging middleware")
	}
	if !strings.Contains(w.Body.String(), `"forwarding":{"cooldowns_active":0`) {
		t.Errorf("expected forwarding stats in health, got %s", w.Body.String())
	}
}

func TestServer_DashboardPage(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, "GET", "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `id="region-controls"`) {
		t.Error("expected controls region in page")
	}
}

func TestServer_RefreshThenFragments(t *testing.T) {
	srv, ctrl := newTestServer(t)
	ctrl.Refresh(context.Background())

	w := serve(srv, "GET", "/fragments/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `id="error-count">3<`) {
		t.Errorf("expected error count 3, got %s", w.Body.String())
	}

	w = serve(srv, "GET", "/fragments/signals-table")
	if strings.Count(w.Body.String(), "<tr") != 1 || !strings.Contains(w.Body.String(), "$67,500.00") {
		t.Errorf("expected a single signal row, got %s", w.Body.String())
	}

	w = serve(srv, "GET", "/fragments/price")
	if !strings.Contains(w.Body.String(), "$67,432.10") {
		t.Errorf("expected formatted price, got %s", w.Body.String())
	}

	w = serve(srv, "GET", "/fragments/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown region, got %d", w.Code)
	}
}

func TestServer_StartThroughPage(t *testing.T) {
	srv, ctrl := newTestServer(t)

	w := serve(srv, "POST", "/control/start")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Bot started successfully") {
		t.Errorf("expected success notification, got %s", body)
	}
	if !strings.Contains(body, `hx-swap-oob="innerHTML"`) {
		t.Error("expected out-of-band notifications")
	}
	if ctrl.State() != dashboard.StateRunning {
		t.Errorf("expected running, got %s", ctrl.State())
	}

	// Stop fails on the backend with a message.
	w = serve(srv, "POST", "/control/stop")
	if !strings.Contains(w.Body.String(), "bot is busy") {
		t.Errorf("expected backend error in notifications, got %s", w.Body.String())
	}
	if ctrl.State() != dashboard.StateRunning {
		t.Errorf("expected still running, got %s", ctrl.State())
	}
}

func TestServer_JSONControl(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, "POST", "/api/control/stop")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 when not running, got %d", w.Code)
	}
	var errResp response.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &errResp)
	if errResp.Error.Code != "NOT_RUNNING" {
		t.Errorf("expected NOT_RUNNING, got %s", errResp.Error.Code)
	}

	w = serve(srv, "POST", "/api/control/start")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	w = serve(srv, "GET", "/api/view")
	var resp response.SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected view payload %s", w.Body.String())
	}
	if data["state"] != "running" {
		t.Errorf("expected running state, got %v", data["state"])
	}
}

func TestServer_SignalHistory(t *testing.T) {
	srv, ctrl := newTestServer(t)
	ctrl.Refresh(context.Background())

	w := serve(srv, "GET", "/api/signals/history?type=SHORT")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data struct {
			Total   int `json:"total"`
			Entries []struct {
				Key string `json:"key"`
			} `json:"entries"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Total != 1 || len(resp.Data.Entries) != 1 {
		t.Fatalf("expected one recorded signal, got %s", w.Body.String())
	}
	if resp.Data.Entries[0].Key != "2026-10-17T09:30:00|SHORT" {
		t.Errorf("unexpected key %s", resp.Data.Entries[0].Key)
	}

	w = serve(srv, "GET", "/api/signals/history?limit=1000")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, ctrl := newTestServer(t)
	ctrl.Refresh(context.Background())
	serve(srv, "GET", "/fragments/status")

	w := serve(srv, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{"botdash_polls_total", "http_requests_total", `path="/fragments/{region}"`} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.router.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := serve(srv, "GET", "/panic")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
