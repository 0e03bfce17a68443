package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/botdash/internal/core"
)

type mockSink struct {
	mu     sync.Mutex
	levels []string
	sent   []string
}

func (m *mockSink) Alert(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = append(m.levels, level)
	m.sent = append(m.sent, msg)
}

func TestEvaluator_ForDuration(t *testing.T) {
	sink := &mockSink{}
	rule := Rule{
		Name:     "price_high",
		Expr:     "price > 70000",
		For:      time.Minute,
		Severity: "danger",
		Message:  "Price above 70k",
	}
	eval := NewEvaluator([]Rule{rule}, sink, nil)

	eval.Observe(map[string]float64{"price": 70100})

	// First evaluation starts the pending timer, doesn't fire
	if len(sink.sent) != 0 {
		t.Errorf("expected no notification on first eval, got %d", len(sink.sent))
	}

	eval.advanceTime(2 * time.Minute)
	fired := eval.Observe(map[string]float64{"price": 70200})

	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 notification after duration, got %d", len(sink.sent))
	}
	if len(fired) != 1 || fired[0] != "price_high" {
		t.Errorf("expected price_high to fire, got %v", fired)
	}
	if sink.levels[0] != "danger" {
		t.Errorf("expected danger level, got %s", sink.levels[0])
	}
	if sink.sent[0] != "price_high: Price above 70k (price = 70200.00)" {
		t.Errorf("unexpected message: %s", sink.sent[0])
	}
}

func TestEvaluator_Cooldown(t *testing.T) {
	sink := &mockSink{}
	rule := Rule{Name: "errors", Expr: "error_count >= 3", Message: "Bot is failing"}
	eval := NewEvaluator([]Rule{rule}, sink, nil)
	eval.SetCooldown(5 * time.Minute)

	metrics := map[string]float64{"error_count": 3}
	eval.Observe(metrics)
	eval.Observe(metrics)
	eval.Observe(metrics)

	// Should only notify once due to cooldown
	if len(sink.sent) != 1 {
		t.Errorf("expected 1 notification due to cooldown, got %d", len(sink.sent))
	}
	if sink.levels[0] != "info" {
		t.Errorf("expected default info level, got %s", sink.levels[0])
	}

	eval.advanceTime(6 * time.Minute)
	eval.Observe(metrics)
	if len(sink.sent) != 2 {
		t.Errorf("expected a second notification after cooldown, got %d", len(sink.sent))
	}
}

func TestEvaluator_RuleNotTriggered(t *testing.T) {
	sink := &mockSink{}
	rule := Rule{Name: "drop", Expr: "change_24h < -5", Message: "Sharp drop"}
	eval := NewEvaluator([]Rule{rule}, sink, nil)

	eval.Observe(map[string]float64{"change_24h": -1.2})

	if len(sink.sent) != 0 {
		t.Errorf("expected no notification, got %d", len(sink.sent))
	}
}

func TestEvaluator_MergesMetricsAcrossObservations(t *testing.T) {
	sink := &mockSink{}
	rules := []Rule{
		{Name: "price_low", Expr: "price < 60000", Message: "Price below 60k"},
		{Name: "errors", Expr: "error_count > 0", Message: "Errors reported"},
	}
	eval := NewEvaluator(rules, sink, nil)

	eval.Observe(map[string]float64{"price": 59000})
	if len(sink.sent) != 1 {
		t.Fatalf("expected only the price rule, got %v", sink.sent)
	}

	// The price is kept when only the error count arrives.
	eval.Observe(map[string]float64{"error_count": 2})
	if len(sink.sent) != 2 {
		t.Errorf("expected the error rule to fire, got %v", sink.sent)
	}
}

func TestEvaluator_PendingClearsWhenRuleNoLongerTriggers(t *testing.T) {
	sink := &mockSink{}
	rule := Rule{Name: "atr_high", Expr: "atr > 500", For: time.Minute, Message: "Volatile"}
	eval := NewEvaluator([]Rule{rule}, sink, nil)

	// First: trigger rule to start pending
	eval.Observe(map[string]float64{"atr": 600})

	// Second: rule no longer triggers - should clear pending
	eval.Observe(map[string]float64{"atr": 400})

	// Third: advance time and re-trigger - should start new pending
	eval.advanceTime(2 * time.Minute)
	eval.Observe(map[string]float64{"atr": 600})

	if len(sink.sent) != 0 {
		t.Errorf("expected no notification (pending cleared), got %d", len(sink.sent))
	}
}

func TestSinkFunc(t *testing.T) {
	var got string
	eval := NewEvaluator([]Rule{{Name: "r", Expr: "price > 1"}},
		SinkFunc(func(level, msg string) { got = level + " " + msg }), nil)

	eval.Observe(map[string]float64{"price": 2})
	if got != "info r: price > 1 (price = 2.00)" {
		t.Errorf("unexpected sink call: %q", got)
	}
}

func TestRule_Evaluate(t *testing.T) {
	tests := []struct {
		expr     string
		metrics  map[string]float64
		expected bool
	}{
		{"price > 70000", map[string]float64{"price": 70000.5}, true},
		{"price > 70000", map[string]float64{"price": 69999}, false},
		{"error_count == 0", map[string]float64{"error_count": 0}, true},
		{"error_count == 0", map[string]float64{"error_count": 1}, false},
		{"atr >= 10", map[string]float64{"atr": 10}, true},
		{"atr >= 10", map[string]float64{"atr": 9}, false},
		{"ema_13 <= 100", map[string]float64{"ema_13": 50}, true},
		{"ema_13 <= 100", map[string]float64{"ema_13": 150}, false},
		{"change_24h < -2.5", map[string]float64{"change_24h": -3}, true},
		{"change_24h != 0", map[string]float64{"change_24h": 0}, false},
		{"price > 0", map[string]float64{}, false}, // missing metric
		{"price >> 0", map[string]float64{"price": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			rule := Rule{Expr: tt.expr}
			result := rule.Evaluate(tt.metrics)
			if result != tt.expected {
				t.Errorf("expr %q with metrics %v: expected %v, got %v",
					tt.expr, tt.metrics, tt.expected, result)
			}
		})
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid", Rule{Name: "a", Expr: "price > 1", Severity: "danger"}, false},
		{"default severity", Rule{Name: "a", Expr: "volume_24h > 1"}, false},
		{"missing name", Rule{Expr: "price > 1"}, true},
		{"bad expression", Rule{Name: "a", Expr: "price is high"}, true},
		{"unknown metric", Rule{Name: "a", Expr: "rsi > 70"}, true},
		{"bad severity", Rule{Name: "a", Expr: "price > 1", Severity: "critical"}, true},
		{"negative for", Rule{Name: "a", Expr: "price > 1", For: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestPriceMetrics(t *testing.T) {
	m := PriceMetrics(core.PriceSnapshot{Price: 1, Change24h: 2, EMA13: 3, EMA55: 4, ATR: 5})
	if m[MetricPrice] != 1 || m[MetricEMA55] != 4 || m[MetricATR] != 5 {
		t.Errorf("unexpected metrics: %v", m)
	}
	if _, ok := m[MetricVolume24h]; ok {
		t.Error("expected volume to be omitted when not reported")
	}
}
