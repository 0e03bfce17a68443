package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// SignalType is the direction of a trade recommendation
type SignalType string

const (
	SignalLong  SignalType = "LONG"
	SignalShort SignalType = "SHORT"
)

// IsLong reports whether the signal points up
func (t SignalType) IsLong() bool {
	return t == SignalLong
}

// Signal is a backend-emitted trade recommendation
type Signal struct {
	Timestamp  Timestamp  `json:"timestamp"`
	Type       SignalType `json:"type"`
	Entry      float64    `json:"entry"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	ATR        float64    `json:"atr"`
}

// Key identifies a signal across polls.
func (s Signal) Key() string {
	return s.Timestamp.Raw + "|" + string(s.Type)
}

// BotStatus is the payload of the status endpoint
type BotStatus struct {
	Running    bool       `json:"running"`
	LastCheck  *Timestamp `json:"last_check,omitempty"`
	ErrorCount int        `json:"error_count"`
	LastSignal *Signal    `json:"last_signal,omitempty"`
}

// PriceSnapshot is the payload of the current price endpoint
type PriceSnapshot struct {
	Price     float64    `json:"price"`
	Change24h float64    `json:"change_24h"`
	EMA13     float64    `json:"ema_13"`
	EMA55     float64    `json:"ema_55"`
	ATR       float64    `json:"atr"`
	Volume24h float64    `json:"volume_24h,omitempty"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// SignalList is the payload of the signals endpoint
type SignalList struct {
	Signals []Signal `json:"signals"`
}

// naiveLayout is the ISO form the bot emits without a zone offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Timestamp keeps the backend's raw value next to its parsed time.
// Time is zero when Raw could not be parsed.
type Timestamp struct {
	Raw  string
	Time time.Time
}

// ParseTimestamp parses RFC 3339 or naive ISO values. Naive values are
// interpreted in loc (UTC when nil).
func ParseTimestamp(raw string, loc *time.Location) Timestamp {
	ts := Timestamp{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return ts
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return ts
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(naiveLayout, s, loc); err == nil {
		ts.Time = t
	}
	return ts
}

// IsZero reports whether neither a raw value nor a parsed time is present.
func (t Timestamp) IsZero() bool {
	return t.Raw == "" && t.Time.IsZero()
}

// Valid reports whether Raw was parsed.
func (t Timestamp) Valid() bool {
	return !t.Time.IsZero()
}

// UnmarshalJSON accepts a string or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ParseTimestamp(raw, time.UTC)
	return nil
}

// MarshalJSON writes the raw backend value back out.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Raw == "" && t.Valid() {
		return json.Marshal(t.Time.Format(time.RFC3339Nano))
	}
	return json.Marshal(t.Raw)
}

// In re-reads a naive timestamp in loc. Values with an explicit offset
// are unchanged.
func (t Timestamp) In(loc *time.Location) Timestamp {
	if t.Raw == "" || loc == nil {
		return t
	}
	if _, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t.Raw)); err == nil {
		return t
	}
	return ParseTimestamp(t.Raw, loc)
}
