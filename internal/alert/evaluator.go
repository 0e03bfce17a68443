// Package alert raises notifications when polled values cross thresholds.
package alert

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink receives fired alerts.
type Sink interface {
	Alert(level, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level, message string)

// Alert calls f.
func (f SinkFunc) Alert(level, message string) { f(level, message) }

// Evaluator evaluates alert rules and sends notifications.
type Evaluator struct {
	rules    []Rule
	sink     Sink
	logger   *zap.Logger
	metrics  map[string]float64
	cooldown time.Duration

	// Track pending alerts (waiting for "for" duration)
	pending map[string]time.Time
	// Track last fired time for cooldown
	lastFired map[string]time.Time

	// For testing: allow time advancement
	now func() time.Time

	mu sync.Mutex
}

// NewEvaluator creates a new alert evaluator.
func NewEvaluator(rules []Rule, sink Sink, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		rules:     rules,
		sink:      sink,
		logger:    logger,
		metrics:   make(map[string]float64),
		cooldown:  5 * time.Minute,
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetCooldown sets the cooldown duration between alerts.
func (e *Evaluator) SetCooldown(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = d
}

// Observe merges metrics into the current values and evaluates every rule.
// It returns the names of the rules that fired.
func (e *Evaluator) Observe(metrics map[string]float64) []string {
	type fired struct {
		name, level, message string
	}

	e.mu.Lock()
	for k, v := range metrics {
		e.metrics[k] = v
	}
	var out []fired
	for i := range e.rules {
		rule := &e.rules[i]
		if e.evaluateLocked(rule) {
			out = append(out, fired{rule.Name, rule.Level(), rule.FormatMessage(e.metrics)})
		}
	}
	e.mu.Unlock()

	names := make([]string, 0, len(out))
	for _, f := range out {
		e.logger.Info("alert fired",
			zap.String("rule", f.name),
			zap.String("level", f.level),
		)
		if e.sink != nil {
			e.sink.Alert(f.level, f.message)
		}
		names = append(names, f.name)
	}
	return names
}

// evaluateLocked reports whether rule fires now.
func (e *Evaluator) evaluateLocked(rule *Rule) bool {
	now := e.now()

	// Check if rule condition is met
	if !rule.Evaluate(e.metrics) {
		// Rule not triggered, clear pending state
		delete(e.pending, rule.Name)
		return false
	}

	if rule.For > 0 {
		pendingSince, isPending := e.pending[rule.Name]
		if !isPending {
			e.pending[rule.Name] = now
			return false
		}
		if now.Sub(pendingSince) < rule.For {
			return false
		}
	}

	lastFired, hasFired := e.lastFired[rule.Name]
	if hasFired && now.Sub(lastFired) < e.cooldown {
		return false
	}

	e.lastFired[rule.Name] = now
	delete(e.pending, rule.Name)
	return true
}

// advanceTime is for testing - advances the internal clock.
func (e *Evaluator) advanceTime(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	oldNow := e.now
	e.now = func() time.Time {
		return oldNow().Add(d)
	}
}
