package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/newthinker/botdash/internal/alert"
	"github.com/newthinker/botdash/internal/core"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Backend   BackendConfig             `mapstructure:"backend"`
	Poll      PollConfig                `mapstructure:"poll"`
	Display   DisplayConfig             `mapstructure:"display"`
	Notices   NoticesConfig             `mapstructure:"notices"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Router    RouterConfig              `mapstructure:"router"`
	History   HistoryConfig             `mapstructure:"history"`
	Alerts    AlertsConfig              `mapstructure:"alerts"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Log       LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Title        string `mapstructure:"title"`
	TemplatesDir string `mapstructure:"templates_dir"`
}

// BackendConfig points at the trading bot API.
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
}

// PollConfig controls the refresh schedule.
type PollConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DropStale      bool          `mapstructure:"drop_stale"`
}

// DisplayConfig controls number and time formatting.
type DisplayConfig struct {
	Locale     string `mapstructure:"locale"`
	Timezone   string `mapstructure:"timezone"`
	TimeLayout string `mapstructure:"time_layout"`
}

type NoticesConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type NotifierConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   int64             `mapstructure:"chat_id"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// RouterConfig filters which events reach the notifiers.
type RouterConfig struct {
	ForwardSignals bool          `mapstructure:"forward_signals"`
	NoticeLevels   []string      `mapstructure:"notice_levels"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
}

// HistoryConfig sizes the in-memory signal history.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	MaxSize int  `mapstructure:"max_size"`
}

// AlertsConfig holds threshold rules over polled values.
type AlertsConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []alert.Rule  `mapstructure:"rules"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig sets the minimum log level ("debug", "info", "warn", "error").
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults mirrors Defaults so partial files still get sane values.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.title", d.Server.Title)
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("backend.requests_per_sec", d.Backend.RequestsPerSec)
	v.SetDefault("backend.burst", d.Backend.Burst)
	v.SetDefault("backend.ready_timeout", d.Backend.ReadyTimeout)
	v.SetDefault("poll.interval", d.Poll.Interval)
	v.SetDefault("poll.request_timeout", d.Poll.RequestTimeout)
	v.SetDefault("poll.drop_stale", d.Poll.DropStale)
	v.SetDefault("display.locale", d.Display.Locale)
	v.SetDefault("display.timezone", d.Display.Timezone)
	v.SetDefault("display.time_layout", d.Display.TimeLayout)
	v.SetDefault("notices.ttl", d.Notices.TTL)
	v.SetDefault("router.forward_signals", d.Router.ForwardSignals)
	v.SetDefault("router.notice_levels", d.Router.NoticeLevels)
	v.SetDefault("router.cooldown", d.Router.Cooldown)
	v.SetDefault("router.send_timeout", d.Router.SendTimeout)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.max_size", d.History.MaxSize)
	v.SetDefault("alerts.cooldown", d.Alerts.Cooldown)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("log.level", d.Log.Level)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "0.0.0.0",
			Port:  8080,
			Title: "Trading Bot Dashboard",
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:5000",
			Timeout:        10 * time.Second,
			RequestsPerSec: 10,
			Burst:          6,
			ReadyTimeout:   30 * time.Second,
		},
		Poll: PollConfig{
			Interval:       5 * time.Second,
			RequestTimeout: 4 * time.Second,
			DropStale:      true,
		},
		Display: DisplayConfig{
			Locale:     "en-US",
			Timezone:   "Local",
			TimeLayout: "02/01/2006, 15:04:05",
		},
		Notices: NoticesConfig{
			TTL: 5 * time.Second,
		},
		Router: RouterConfig{
			ForwardSignals: true,
			NoticeLevels:   []string{"danger"},
			Cooldown:       time.Minute,
			SendTimeout:    10 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			MaxSize: 500,
		},
		Alerts: AlertsConfig{
			Cooldown: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Backend validation
	if c.Backend.BaseURL == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("backend base_url is required"))
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backend base_url must be an absolute http(s) URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.RequestsPerSec < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("requests_per_sec cannot be negative, got %f", c.Backend.RequestsPerSec))
	}

	// Poll validation
	if c.Poll.Interval < time.Second {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("poll interval must be at least 1s, got %s", c.Poll.Interval))
	}
	if c.Poll.RequestTimeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("poll request_timeout must be positive, got %s", c.Poll.RequestTimeout))
	}

	// Display validation
	if _, err := language.Parse(c.Display.Locale); err != nil {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("display locale %q: %w", c.Display.Locale, err))
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("display timezone %q: %w", c.Display.Timezone, err))
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("log level %q not supported", c.Log.Level))
	}

	if c.Notices.TTL <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("notices ttl must be positive, got %s", c.Notices.TTL))
	}

	for _, l := range c.Router.NoticeLevels {
		switch l {
		case "success", "info", "danger":
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("router notice level %q not supported", l))
		}
	}

	if c.History.Enabled && c.History.MaxSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("history max_size must be positive, got %d", c.History.MaxSize))
	}

	seen := make(map[string]bool, len(c.Alerts.Rules))
	for i := range c.Alerts.Rules {
		r := &c.Alerts.Rules[i]
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("duplicate alert rule %q", r.Name))
		}
		seen[r.Name] = true
	}

	// Notifier validation - enabled notifiers need their credentials
	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "telegram":
			if n.BotToken == "" || n.ChatID == 0 {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("telegram bot_token and chat_id required when enabled"))
			}
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("webhook url required when enabled"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown notifier %q", name))
		}
	}

	return nil
}
