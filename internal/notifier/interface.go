package notifier

import (
	"context"
	"time"

	"github.com/newthinker/botdash/internal/core"
)

// Kind is the type of a forwarded event
type Kind string

const (
	KindSignal Kind = "signal"
	KindNotice Kind = "notice"
)

// Event is something the dashboard observed and forwards to operators.
// Signal is set for KindSignal; Level and Message for KindNotice.
type Event struct {
	Kind    Kind
	Signal  *core.Signal
	Level   string
	Message string
	Time    time.Time
}

// SignalEvent wraps a newly observed signal.
func SignalEvent(s core.Signal) Event {
	return Event{Kind: KindSignal, Signal: &s, Time: time.Now()}
}

// NoticeEvent wraps an on-screen notification.
func NoticeEvent(level, message string) Event {
	return Event{Kind: KindNotice, Level: level, Message: message, Time: time.Now()}
}

// Notifier defines the interface for event delivery
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Send delivers a single event
	Send(ctx context.Context, ev Event) error
}
