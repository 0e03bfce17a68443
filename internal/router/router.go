// Package router forwards dashboard events to notifiers with filtering.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/botdash/internal/notifier"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	ForwardSignals   bool          `mapstructure:"forward_signals"`
	NoticeLevels     []string      `mapstructure:"notice_levels"`
	CooldownDuration time.Duration `mapstructure:"cooldown"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
}

// DefaultConfig forwards signals and danger notices, with a one minute
// cooldown on repeated notice messages.
func DefaultConfig() Config {
	return Config{
		ForwardSignals:   true,
		NoticeLevels:     []string{"danger"},
		CooldownDuration: time.Minute,
		SendTimeout:      10 * time.Second,
	}
}

// Recorder receives delivery outcomes.
type Recorder interface {
	RecordForwarded(notifier, status string)
}

// Router routes events to notifiers with filtering
type Router struct {
	cfg       Config
	registry  *notifier.Registry
	logger    *zap.Logger
	recorder  Recorder
	cooldowns map[string]time.Time // event key -> last forward time
	mu        sync.RWMutex
}

// New creates an event router. registry and logger may be nil.
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
	}
}

// SetRecorder sets the delivery metrics sink
func (r *Router) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Route sends an event to all notifiers when it passes the filters. It
// reports whether the event was forwarded.
func (r *Router) Route(ctx context.Context, ev notifier.Event) bool {
	if r.registry == nil || r.registry.Len() == 0 {
		return false
	}

	if !r.passesFilters(ev) || !r.claim(eventKey(ev), ev.Kind) {
		r.logger.Debug("event filtered out",
			zap.String("kind", string(ev.Kind)),
			zap.String("level", ev.Level),
		)
		return false
	}

	if r.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SendTimeout)
		defer cancel()
	}

	results := r.registry.NotifyAll(ctx, ev)
	failed := 0
	for name, err := range results {
		status := "ok"
		if err != nil {
			status = "error"
			failed++
			r.logger.Error("notifier failed",
				zap.String("notifier", name),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
		}
		if r.recorder != nil {
			r.recorder.RecordForwarded(name, status)
		}
	}

	r.logger.Info("event routed",
		zap.String("kind", string(ev.Kind)),
		zap.Int("notifiers", len(results)),
		zap.Int("errors", failed),
	)
	return true
}

func eventKey(ev notifier.Event) string {
	if ev.Kind == notifier.KindSignal && ev.Signal != nil {
		return "signal|" + ev.Signal.Key()
	}
	return "notice|" + ev.Level + "|" + ev.Message
}

// passesFilters checks the event kind and notice level against the config
func (r *Router) passesFilters(ev notifier.Event) bool {
	switch ev.Kind {
	case notifier.KindSignal:
		return r.cfg.ForwardSignals && ev.Signal != nil
	case notifier.KindNotice:
		for _, l := range r.cfg.NoticeLevels {
			if l == ev.Level {
				return true
			}
		}
	}
	return false
}

// claim records key as forwarded now unless it is in cooldown. A signal is
// forwarded once however long it stays in the list.
func (r *Router) claim(key string, kind notifier.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, exists := r.cooldowns[key]
	if exists && (kind == notifier.KindSignal || time.Since(last) < r.cfg.CooldownDuration) {
		return false
	}
	r.cooldowns[key] = time.Now()
	return true
}

// CleanupExpiredCooldowns removes entries older than the retention window.
// Signal keys are retained for a day so slow-moving lists are not re-sent.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	noticeExpiry := r.cfg.CooldownDuration * 2
	removed := 0

	for key, lastTime := range r.cooldowns {
		expiry := noticeExpiry
		if strings.HasPrefix(key, "signal|") {
			expiry = 24 * time.Hour
		}
		if now.Sub(lastTime) > expiry {
			delete(r.cooldowns, key)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically cleans up expired cooldowns.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := r.CleanupExpiredCooldowns()
				if removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats describes the forwarding state.
type Stats struct {
	CooldownsActive int      `json:"cooldowns_active"`
	CooldownSeconds float64  `json:"cooldown_seconds"`
	ForwardSignals  bool     `json:"forward_signals"`
	NoticeLevels    []string `json:"notice_levels"`
	Notifiers       []string `json:"notifiers"`
}

// GetStats returns router statistics
func (r *Router) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := []string{}
	if r.registry != nil {
		for _, n := range r.registry.GetAll() {
			names = append(names, n.Name())
		}
	}
	return Stats{
		CooldownsActive: len(r.cooldowns),
		CooldownSeconds: r.cfg.CooldownDuration.Seconds(),
		ForwardSignals:  r.cfg.ForwardSignals,
		NoticeLevels:    append([]string{}, r.cfg.NoticeLevels...),
		Notifiers:       names,
	}
}
