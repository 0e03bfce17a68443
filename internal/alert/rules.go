package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/botdash/internal/core"
)

// Metric names a rule expression can refer to.
const (
	MetricPrice      = "price"
	MetricChange24h  = "change_24h"
	MetricEMA13      = "ema_13"
	MetricEMA55      = "ema_55"
	MetricATR        = "atr"
	MetricVolume24h  = "volume_24h"
	MetricErrorCount = "error_count"
)

var knownMetrics = map[string]bool{
	MetricPrice:      true,
	MetricChange24h:  true,
	MetricEMA13:      true,
	MetricEMA55:      true,
	MetricATR:        true,
	MetricVolume24h:  true,
	MetricErrorCount: true,
}

// exprPattern matches "metric op value".
var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*(-?\d+(?:\.\d+)?)$`)

// Rule defines an alert rule.
type Rule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

type condition struct {
	metric    string
	op        string
	threshold float64
}

func parse(expr string) (condition, error) {
	m := exprPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if len(m) != 4 {
		return condition{}, fmt.Errorf("expression %q is not of the form \"metric op value\"", expr)
	}
	threshold, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("expression %q: %w", expr, err)
	}
	return condition{metric: m[1], op: m[2], threshold: threshold}, nil
}

// Validate checks the rule can be evaluated.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("alert rule name is required"))
	}
	cond, err := parse(r.Expr)
	if err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("alert %s: %w", r.Name, err))
	}
	if !knownMetrics[cond.metric] {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("alert %s: unknown metric %q", r.Name, cond.metric))
	}
	switch r.Severity {
	case "", "info", "success", "danger":
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("alert %s: severity %q not supported", r.Name, r.Severity))
	}
	if r.For < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("alert %s: for cannot be negative", r.Name))
	}
	return nil
}

// Level returns the notification level, info when unset.
func (r *Rule) Level() string {
	if r.Severity == "" {
		return "info"
	}
	return r.Severity
}

// Evaluate evaluates the rule expression against metrics. A metric that
// has not been observed never matches.
func (r *Rule) Evaluate(metrics map[string]float64) bool {
	cond, err := parse(r.Expr)
	if err != nil {
		return false
	}

	value, exists := metrics[cond.metric]
	if !exists {
		return false
	}

	switch cond.op {
	case ">":
		return value > cond.threshold
	case "<":
		return value < cond.threshold
	case ">=":
		return value >= cond.threshold
	case "<=":
		return value <= cond.threshold
	case "==":
		return value == cond.threshold
	case "!=":
		return value != cond.threshold
	default:
		return false
	}
}

// FormatMessage formats the alert message with the current metric value.
func (r *Rule) FormatMessage(metrics map[string]float64) string {
	msg := r.Message
	if msg == "" {
		msg = r.Expr
	}
	cond, err := parse(r.Expr)
	if err != nil {
		return fmt.Sprintf("%s: %s", r.Name, msg)
	}
	return fmt.Sprintf("%s: %s (%s = %.2f)", r.Name, msg, cond.metric, metrics[cond.metric])
}

// PriceMetrics maps a price snapshot to rule metric names.
func PriceMetrics(p core.PriceSnapshot) map[string]float64 {
	m := map[string]float64{
		MetricPrice:     p.Price,
		MetricChange24h: p.Change24h,
		MetricEMA13:     p.EMA13,
		MetricEMA55:     p.EMA55,
		MetricATR:       p.ATR,
	}
	if p.Volume24h != 0 {
		m[MetricVolume24h] = p.Volume24h
	}
	return m
}
