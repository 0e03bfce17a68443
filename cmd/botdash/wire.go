package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/botdash/internal/alert"
	"github.com/newthinker/botdash/internal/botapi"
	"github.com/newthinker/botdash/internal/config"
	"github.com/newthinker/botdash/internal/logger"
	"github.com/newthinker/botdash/internal/notifier"
	"github.com/newthinker/botdash/internal/notifier/telegram"
	"github.com/newthinker/botdash/internal/notifier/webhook"
	"github.com/newthinker/botdash/internal/storage/history"
	"github.com/newthinker/botdash/internal/view"
	"go.uber.org/zap"
)

// loadEnv reads .env into the process environment. A missing file is fine.
func loadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// loadConfig reads the config file, or defaults when none is given, and
// validates it.
func loadConfig(path string) (*config.Config, bool, error) {
	var cfg *config.Config
	fromFile := path != ""

	if fromFile {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, false, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, fromFile, nil
}

func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	return logger.New(debug, level)
}

func newRenderer(cfg *config.Config) (*view.Renderer, error) {
	f, err := view.NewFormatter(cfg.Display.Locale, cfg.Display.Timezone, cfg.Display.TimeLayout)
	if err != nil {
		return nil, fmt.Errorf("creating formatter: %w", err)
	}
	return view.NewRenderer(f)
}

func newClient(cfg *config.Config, r *view.Renderer) *botapi.Client {
	return botapi.New(cfg.Backend.BaseURL,
		botapi.WithTimeout(cfg.Backend.Timeout),
		botapi.WithRateLimit(cfg.Backend.RequestsPerSec, cfg.Backend.Burst),
		botapi.WithLocation(r.Formatter().Location()),
	)
}

// buildNotifiers registers every enabled notifier from the config.
func buildNotifiers(cfg *config.Config, log *zap.Logger) (*notifier.Registry, error) {
	registry := notifier.NewRegistry()

	names := make([]string, 0, len(cfg.Notifiers))
	for name := range cfg.Notifiers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		nc := cfg.Notifiers[name]
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		var err error
		switch name {
		case "telegram":
			n, err = telegram.New(nc.BotToken, nc.ChatID)
		case "webhook":
			n, err = webhook.New(nc.URL, nc.Headers)
		default:
			err = fmt.Errorf("unknown notifier %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("creating notifier %s: %w", name, err)
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
		log.Info("notifier enabled", zap.String("notifier", name))
	}

	return registry, nil
}

// buildAlerts returns an evaluator for the configured rules, or nil when
// there are none.
func buildAlerts(cfg *config.Config, log *zap.Logger, notify func(view.Level, string)) *alert.Evaluator {
	if len(cfg.Alerts.Rules) == 0 {
		return nil
	}
	e := alert.NewEvaluator(cfg.Alerts.Rules, alert.SinkFunc(func(level, msg string) {
		notify(view.Level(level), msg)
	}), log.Named("alert"))
	if cfg.Alerts.Cooldown > 0 {
		e.SetCooldown(cfg.Alerts.Cooldown)
	}
	log.Info("alert rules loaded", zap.Int("rules", len(cfg.Alerts.Rules)))
	return e
}

// historyStore keeps a nil store a nil interface.
func historyStore(s *history.MemoryStore) history.Store {
	if s == nil {
		return nil
	}
	return s
}

// poller runs the refresh loop until ctx is done.
type poller interface {
	Run(ctx context.Context) error
}

// startPolling starts the refresh loop right away. When readyTimeout is set,
// backend readiness is only logged from a separate goroutine.
func startPolling(ctx context.Context, p poller, client *botapi.Client, readyTimeout time.Duration, log *zap.Logger) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	if readyTimeout > 0 {
		go func() {
			if err := client.WaitReady(ctx, readyTimeout); err != nil {
				if ctx.Err() == nil {
					log.Warn("backend not ready, polling anyway", zap.Error(err))
				}
				return
			}
			log.Info("backend ready")
		}()
	}
	return done
}
