package dashboard

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Run refreshes once immediately and then every Options.Interval until
// ctx is done or Close is called. Ticks are not serialized: a slow tick
// may overlap the next one. Run blocks.
func (c *Controller) Run(ctx context.Context) error {
	c.runMu.Lock()
	if c.cron != nil {
		c.runMu.Unlock()
		return fmt.Errorf("dashboard already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel

	c.cron = cron.New()
	spec := fmt.Sprintf("@every %s", c.opts.Interval)
	if _, err := c.cron.AddFunc(spec, func() { c.tick(ctx) }); err != nil {
		c.cron = nil
		c.runMu.Unlock()
		cancel()
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	sched := c.cron
	c.runMu.Unlock()

	c.logger.Info("dashboard polling started",
		zap.Duration("interval", c.opts.Interval),
		zap.Duration("request_timeout", c.opts.RequestTimeout),
		zap.Bool("drop_stale", c.opts.DropStale),
	)

	c.tick(ctx)
	sched.Start()

	<-ctx.Done()

	stopped := sched.Stop()
	<-stopped.Done()

	c.runMu.Lock()
	c.closed = true
	c.runMu.Unlock()
	c.wg.Wait()

	c.logger.Info("dashboard polling stopped")
	return nil
}

// Close stops the schedule and cancels in-flight refreshes.
func (c *Controller) Close() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.Refresh(ctx)
}
