// internal/storage/history/interface.go
package history

import (
	"context"
	"time"

	"github.com/newthinker/botdash/internal/core"
)

// Entry is a signal as first observed by the dashboard.
type Entry struct {
	Key    string      `json:"key"`
	Signal core.Signal `json:"signal"`
	SeenAt time.Time   `json:"seen_at"`
}

// Store defines the interface for signal history.
type Store interface {
	// Save records a signal. It reports false when the signal is already known.
	Save(ctx context.Context, signal core.Signal) (bool, error)

	// Get retrieves an entry by its signal key.
	Get(ctx context.Context, key string) (*Entry, error)

	// List retrieves entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Entry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter defines criteria for listing entries. From and To bound the
// signal timestamp, or the time first seen when the backend timestamp did
// not parse.
type ListFilter struct {
	Type   core.SignalType
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
