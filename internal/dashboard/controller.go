// Package dashboard keeps the rendered state of the bot dashboard. It runs
// start/stop actions against the backend, refreshes status, price and
// signals on a schedule and holds the latest content of every page region.
package dashboard

import (
	"context"
	"errors"
	"html/template"
	"sync"
	"time"

	"github.com/newthinker/botdash/internal/alert"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/notifier"
	"github.com/newthinker/botdash/internal/view"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Backend is the trading bot API the controller drives.
type Backend interface {
	StartBot(ctx context.Context) error
	StopBot(ctx context.Context) error
	Status(ctx context.Context) (*core.BotStatus, error)
	CurrentPrice(ctx context.Context) (*core.PriceSnapshot, error)
	Signals(ctx context.Context) ([]core.Signal, error)
}

// Forwarder delivers events outside the page.
type Forwarder interface {
	Route(ctx context.Context, ev notifier.Event) bool
}

// Recorder receives controller metrics.
type Recorder interface {
	RecordPoll(endpoint string, err error, duration float64)
	RecordStale(endpoint string)
	RecordControl(action, result string)
	SetBotStatus(running bool, errorCount int)
	RecordNotice(level string)
}

// Watcher observes polled values, such as alert rules.
type Watcher interface {
	Observe(metrics map[string]float64) []string
}

// History records every signal the dashboard sees.
type History interface {
	Save(ctx context.Context, signal core.Signal) (bool, error)
}

type nopRecorder struct{}

func (nopRecorder) RecordPoll(string, error, float64) {}
func (nopRecorder) RecordStale(string)                {}
func (nopRecorder) RecordControl(string, string)      {}
func (nopRecorder) SetBotStatus(bool, int)            {}
func (nopRecorder) RecordNotice(string)               {}

// State is the control state machine.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// User-facing messages.
const (
	MsgStarted        = "Bot started successfully"
	MsgStopped        = "Bot stopped"
	MsgStartFailed    = "Failed to start the bot"
	MsgStopFailed     = "Failed to stop the bot"
	MsgStartInFlight  = "Start already in progress"
	MsgAlreadyRunning = "Bot is already running"
	MsgNotRunning     = "Bot is not running"
	msgConnError      = "Connection error: "
)

// Poll endpoints, also used as stream names.
const (
	StreamStatus  = "status"
	StreamPrice   = "price"
	StreamSignals = "signals"
)

// Options tunes the controller.
type Options struct {
	// Interval between scheduled refreshes.
	Interval time.Duration
	// RequestTimeout bounds each refresh call. Zero means no extra bound.
	RequestTimeout time.Duration
	// DropStale discards responses older than the last applied one per stream.
	DropStale bool
	// NoticeTTL is how long a notification stays on screen.
	NoticeTTL time.Duration
}

// DefaultOptions returns the standard 5s schedule with stale dropping.
func DefaultOptions() Options {
	return Options{
		Interval:       5 * time.Second,
		RequestTimeout: 4 * time.Second,
		DropStale:      true,
		NoticeTTL:      5 * time.Second,
	}
}

// stream tracks request tokens for one refresh endpoint.
type stream struct {
	issued  uint64
	applied uint64
}

// Controller owns the dashboard state.
type Controller struct {
	backend   Backend
	render    *view.Renderer
	logger    *zap.Logger
	recorder  Recorder
	forwarder Forwarder
	watcher   Watcher
	history   History
	opts      Options
	now       func() time.Time

	mu         sync.Mutex
	state      State
	regions    map[string]template.HTML
	running    bool
	lastCheck  *core.Timestamp
	errorCount int
	lastSignal *core.Signal
	price      *core.PriceSnapshot
	signals    []core.Signal
	updatedAt  map[string]time.Time
	streams    map[string]*stream
	seen       map[string]struct{}
	primed     bool
	notices    []notice

	// lifecycle
	runMu  sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithForwarder sets where new signals and notifications are forwarded.
func WithForwarder(f Forwarder) Option {
	return func(c *Controller) { c.forwarder = f }
}

// WithWatcher sets the observer of price and status values.
func WithWatcher(w Watcher) Option {
	return func(c *Controller) { c.watcher = w }
}

// WithHistory sets the signal history.
func WithHistory(h History) Option {
	return func(c *Controller) { c.history = h }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller and renders the initial content of every region.
func New(backend Backend, render *view.Renderer, opts Options, options ...Option) (*Controller, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultOptions().NoticeTTL
	}

	c := &Controller{
		backend:   backend,
		render:    render,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
		opts:      opts,
		now:       time.Now,
		regions:   make(map[string]template.HTML, len(view.Regions)),
		updatedAt: make(map[string]time.Time),
		streams: map[string]*stream{
			StreamStatus:  {},
			StreamPrice:   {},
			StreamSignals: {},
		},
		seen: make(map[string]struct{}),
		ctx:  context.Background(),
	}
	for _, o := range options {
		o(c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.renderInitialLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) renderInitialLocked() error {
	if err := c.renderControlsLocked(); err != nil {
		return err
	}
	if err := c.renderStatusLocked(); err != nil {
		return err
	}
	price, err := c.render.RenderPrice(core.PriceSnapshot{})
	if err != nil {
		return err
	}
	c.regions[view.RegionPrice] = price

	details, err := c.render.RenderSignalDetails(nil)
	if err != nil {
		return err
	}
	c.regions[view.RegionSignalDetails] = details

	table, err := c.render.RenderSignalsTable(nil)
	if err != nil {
		return err
	}
	c.regions[view.RegionSignalsTable] = table
	return nil
}

// State returns the control state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Region returns the current content of a region.
func (c *Controller) Region(name string) (template.HTML, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == view.RegionNotifications {
		return c.renderNoticesLocked()
	}
	html, ok := c.regions[name]
	if !ok {
		return "", core.ErrRegionNotFound
	}
	return html, nil
}

// Start asks the backend to start the bot. The control shows a busy state
// while the request is in flight and is restored afterwards whatever the
// outcome. Calling Start while starting or running is rejected.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateStarting:
		c.raiseLocked(view.LevelInfo, MsgStartInFlight)
		c.mu.Unlock()
		c.recorder.RecordControl("start", "rejected")
		return core.ErrControlBusy
	case StateRunning:
		c.raiseLocked(view.LevelInfo, MsgAlreadyRunning)
		c.mu.Unlock()
		c.recorder.RecordControl("start", "rejected")
		return core.ErrAlreadyRunning
	}
	c.state = StateStarting
	c.renderControlsOrLog()
	c.mu.Unlock()

	err := c.backend.StartBot(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateStopped
		c.raiseLocked(view.LevelDanger, controlErrorMessage(err, MsgStartFailed))
		c.logger.Error("start bot failed", zap.Error(err))
		c.recorder.RecordControl("start", "error")
	} else {
		c.state = StateRunning
		c.running = true
		c.raiseLocked(view.LevelSuccess, MsgStarted)
		c.logger.Info("bot started")
		c.recorder.RecordControl("start", "ok")
	}
	c.renderControlsOrLog()
	return err
}

// Stop asks the backend to stop the bot. Only allowed while running.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.raiseLocked(view.LevelInfo, MsgNotRunning)
		c.mu.Unlock()
		c.recorder.RecordControl("stop", "rejected")
		return core.ErrNotRunning
	}
	c.mu.Unlock()

	err := c.backend.StopBot(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.raiseLocked(view.LevelDanger, controlErrorMessage(err, MsgStopFailed))
		c.logger.Error("stop bot failed", zap.Error(err))
		c.recorder.RecordControl("stop", "error")
	} else {
		// A status refresh may have raced us; only the stop outcome counts here.
		c.state = StateStopped
		c.running = false
		c.raiseLocked(view.LevelInfo, MsgStopped)
		c.logger.Info("bot stopped")
		c.recorder.RecordControl("stop", "ok")
	}
	c.renderControlsOrLog()
	return err
}

// controlErrorMessage picks the text shown for a failed control action.
func controlErrorMessage(err error, fallback string) string {
	var se *core.StatusError
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		return fallback
	}
	if errors.Is(err, core.ErrBackendUnreachable) {
		var ce *core.Error
		if errors.As(err, &ce) && ce.Cause != nil {
			return msgConnError + ce.Cause.Error()
		}
	}
	return msgConnError + err.Error()
}

// RefreshStatus fetches the bot status and re-renders the status, controls
// and, when a last signal is reported, signal-details regions.
func (c *Controller) RefreshStatus(ctx context.Context) error {
	token := c.issue(StreamStatus)
	st, err := timed(c, ctx, StreamStatus, c.backend.Status)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.acceptLocked(StreamStatus, token) {
		c.mu.Unlock()
		return nil
	}

	c.running = st.Running
	if c.state != StateStarting {
		if st.Running {
			c.state = StateRunning
		} else {
			c.state = StateStopped
		}
	}
	if st.LastCheck != nil {
		c.lastCheck = st.LastCheck
	}
	c.errorCount = st.ErrorCount
	if st.LastSignal != nil {
		c.lastSignal = st.LastSignal
		if html, err := c.render.RenderSignalDetails(st.LastSignal); err != nil {
			c.logger.Error("render signal details", zap.Error(err))
		} else {
			c.regions[view.RegionSignalDetails] = html
		}
	}
	c.recorder.SetBotStatus(st.Running, st.ErrorCount)

	if err := c.renderStatusLocked(); err != nil {
		c.logger.Error("render status", zap.Error(err))
	}
	c.renderControlsOrLog()
	c.updatedAt[StreamStatus] = c.now()
	c.mu.Unlock()

	c.observe(map[string]float64{alert.MetricErrorCount: float64(st.ErrorCount)})
	return nil
}

// RefreshPrice fetches the current price and re-renders the price region.
// The region keeps its previous content when the call fails.
func (c *Controller) RefreshPrice(ctx context.Context) error {
	token := c.issue(StreamPrice)
	p, err := timed(c, ctx, StreamPrice, c.backend.CurrentPrice)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.acceptLocked(StreamPrice, token) {
		c.mu.Unlock()
		return nil
	}

	html, err := c.render.RenderPrice(*p)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("render price", zap.Error(err))
		return err
	}
	c.price = p
	c.regions[view.RegionPrice] = html
	c.updatedAt[StreamPrice] = c.now()
	c.mu.Unlock()

	c.observe(alert.PriceMetrics(*p))
	return nil
}

// RefreshSignals fetches recent signals and re-renders the table. Signals
// not seen in an earlier refresh are forwarded.
func (c *Controller) RefreshSignals(ctx context.Context) error {
	token := c.issue(StreamSignals)
	signals, err := timed(c, ctx, StreamSignals, c.backend.Signals)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.acceptLocked(StreamSignals, token) {
		c.mu.Unlock()
		return nil
	}

	html, err := c.render.RenderSignalsTable(signals)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("render signals table", zap.Error(err))
		return err
	}
	c.signals = signals
	c.regions[view.RegionSignalsTable] = html
	c.updatedAt[StreamSignals] = c.now()

	var fresh []core.Signal
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		k := s.Key()
		seen[k] = struct{}{}
		if _, ok := c.seen[k]; !ok && c.primed {
			fresh = append(fresh, s)
		}
	}
	c.seen = seen
	c.primed = true
	c.mu.Unlock()

	c.record(ctx, signals)

	for _, s := range fresh {
		c.logger.Info("new signal",
			zap.String("type", string(s.Type)),
			zap.Float64("entry", s.Entry),
			zap.String("timestamp", s.Timestamp.Raw),
		)
		c.forward(notifier.SignalEvent(s))
	}
	return nil
}

// record saves signals to the history, oldest first.
func (c *Controller) record(ctx context.Context, signals []core.Signal) {
	if c.history == nil {
		return
	}
	for i := len(signals) - 1; i >= 0; i-- {
		if _, err := c.history.Save(ctx, signals[i]); err != nil {
			c.logger.Warn("recording signal failed", zap.Error(err))
			return
		}
	}
}

func (c *Controller) observe(metrics map[string]float64) {
	if c.watcher == nil {
		return
	}
	c.watcher.Observe(metrics)
}

// Refresh runs the three refreshes concurrently and waits for them.
// Failures are logged by each refresh and never stop the others.
func (c *Controller) Refresh(ctx context.Context) {
	var wg sync.WaitGroup
	for _, fn := range []func(context.Context) error{c.RefreshStatus, c.RefreshPrice, c.RefreshSignals} {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			_ = fn(ctx)
		}(fn)
	}
	wg.Wait()
}

// timed runs one refresh call with the request timeout and records it.
func timed[T any](c *Controller, ctx context.Context, endpoint string, call func(context.Context) (T, error)) (T, error) {
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	v, err := call(ctx)
	c.recorder.RecordPoll(endpoint, err, time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("refresh failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
	return v, err
}

func (c *Controller) issue(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.streams[name]
	s.issued++
	return s.issued
}

// acceptLocked reports whether a response carrying token may be applied.
func (c *Controller) acceptLocked(name string, token uint64) bool {
	s := c.streams[name]
	if c.opts.DropStale && token <= s.applied {
		c.recorder.RecordStale(name)
		c.logger.Debug("dropped stale response",
			zap.String("endpoint", name),
			zap.Uint64("token", token),
			zap.Uint64("applied", s.applied),
		)
		return false
	}
	s.applied = token
	return true
}

func (c *Controller) renderControlsLocked() error {
	html, err := c.render.RenderControls(c.state == StateRunning, c.state == StateStarting)
	if err != nil {
		return err
	}
	c.regions[view.RegionControls] = html
	return nil
}

func (c *Controller) renderControlsOrLog() {
	if err := c.renderControlsLocked(); err != nil {
		c.logger.Error("render controls", zap.Error(err))
	}
}

func (c *Controller) renderStatusLocked() error {
	v := c.render.Status(c.running, c.lastCheck, c.errorCount, c.lastSignal)
	html, err := c.render.RenderStatus(v)
	if err != nil {
		return err
	}
	c.regions[view.RegionStatus] = html
	return nil
}

// forward hands an event to the forwarder without blocking the caller.
func (c *Controller) forward(ev notifier.Event) {
	if c.forwarder == nil {
		return
	}
	c.runMu.Lock()
	if c.closed {
		c.runMu.Unlock()
		return
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.runMu.Unlock()

	go func() {
		defer c.wg.Done()
		c.forwarder.Route(ctx, ev)
	}()
}

// Snapshot is the controller state exposed as JSON.
type Snapshot struct {
	State         string               `json:"state"`
	Running       bool                 `json:"running"`
	LastCheck     *core.Timestamp      `json:"last_check,omitempty"`
	ErrorCount    int                  `json:"error_count"`
	LastSignal    *core.Signal         `json:"last_signal,omitempty"`
	Price         *core.PriceSnapshot  `json:"price,omitempty"`
	Signals       []core.Signal        `json:"signals"`
	Notifications []view.Notice        `json:"notifications"`
	UpdatedAt     map[string]time.Time `json:"updated_at"`
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	s := Snapshot{
		State:         c.state.String(),
		Running:       c.running,
		LastCheck:     c.lastCheck,
		ErrorCount:    c.errorCount,
		LastSignal:    c.lastSignal,
		Price:         c.price,
		Signals:       append([]core.Signal{}, c.signals...),
		Notifications: c.visibleLocked(),
		UpdatedAt:     make(map[string]time.Time, len(c.updatedAt)),
	}
	for k, v := range c.updatedAt {
		s.UpdatedAt[k] = v
	}
	return s
}
