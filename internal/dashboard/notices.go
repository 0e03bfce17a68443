package dashboard

import (
	"html/template"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/notifier"
	"github.com/newthinker/botdash/internal/view"
	"go.uber.org/zap"
)

type notice struct {
	view.Notice
	created time.Time
}

// Notify raises an on-screen notification and returns its ID.
func (c *Controller) Notify(level view.Level, message string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raiseLocked(level, message)
}

// raiseLocked adds a notification. Danger notifications are also forwarded.
func (c *Controller) raiseLocked(level view.Level, message string) string {
	c.pruneLocked()

	n := notice{
		Notice: view.Notice{
			ID:      uuid.NewString(),
			Level:   level,
			Message: message,
		},
		created: c.now(),
	}
	c.notices = append(c.notices, n)
	c.recorder.RecordNotice(string(level))

	c.logger.Debug("notification raised",
		zap.String("id", n.ID),
		zap.String("level", string(level)),
		zap.String("message", message),
	)
	c.forward(notifier.NoticeEvent(string(level), message))
	return n.ID
}

// Dismiss removes a notification before it expires.
func (c *Controller) Dismiss(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return nil
		}
	}
	return core.ErrNoticeNotFound
}

// Notices returns the notifications still on screen, oldest first.
func (c *Controller) Notices() []view.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return c.visibleLocked()
}

func (c *Controller) pruneLocked() {
	now := c.now()
	kept := c.notices[:0]
	for _, n := range c.notices {
		if now.Sub(n.created) < c.opts.NoticeTTL {
			kept = append(kept, n)
		}
	}
	// Clear the tail so removed notices can be collected.
	for i := len(kept); i < len(c.notices); i++ {
		c.notices[i] = notice{}
	}
	c.notices = kept
}

func (c *Controller) visibleLocked() []view.Notice {
	out := make([]view.Notice, len(c.notices))
	for i, n := range c.notices {
		out[i] = n.Notice
	}
	return out
}

func (c *Controller) renderNoticesLocked() (template.HTML, error) {
	c.pruneLocked()
	return c.render.RenderNotifications(c.visibleLocked())
}
