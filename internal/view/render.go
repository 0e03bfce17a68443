// Package view renders dashboard regions. Every render is a pure function of
// its input and produces the complete content of one region.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/newthinker/botdash/internal/core"
)

//go:embed templates/*.html
var templateFS embed.FS

// Region names. Each maps to one fixed element on the page.
const (
	RegionControls      = "controls"
	RegionPrice         = "price"
	RegionStatus        = "status"
	RegionSignalDetails = "signal-details"
	RegionSignalsTable  = "signals-table"
	RegionNotifications = "notifications"
)

// Regions lists every region in page order.
var Regions = []string{
	RegionControls,
	RegionStatus,
	RegionPrice,
	RegionSignalDetails,
	RegionSignalsTable,
	RegionNotifications,
}

// Level is a notification severity. Values double as Bootstrap alert classes.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelDanger  Level = "danger"
)

// Notice is one on-screen notification.
type Notice struct {
	ID      string `json:"id"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// ControlsView is the start/stop control state.
type ControlsView struct {
	Running       bool
	Starting      bool
	StartDisabled bool
	StopDisabled  bool
	StartLabel    string
	StartIcon     string
	BadgeLabel    string
	BadgeClass    string
}

// StatusView is what the status region shows.
type StatusView struct {
	Running     bool
	StatusLabel string
	StatusClass string
	LastCheck   string
	ErrorCount  int
	LastSignal  string
}

type priceView struct {
	Price       string
	Change      string
	ChangeClass string
	EMA13       string
	EMA55       string
	ATR         string
	Volume      string
}

type signalView struct {
	Long       bool
	Type       string
	Class      string
	Icon       string
	BadgeClass string
	Entry      string
	StopLoss   string
	TakeProfit string
	ATR        string
	Time       string
}

// Renderer executes region templates.
type Renderer struct {
	tmpl   *template.Template
	format *Formatter
}

// NewRenderer parses the embedded region templates.
func NewRenderer(f *Formatter) (*Renderer, error) {
	if f == nil {
		f = DefaultFormatter()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing region templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, format: f}, nil
}

// Formatter returns the formatter used for rendering.
func (r *Renderer) Formatter() *Formatter {
	return r.format
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", core.WrapError(core.ErrRenderFailed, fmt.Errorf("%s: %w", name, err))
	}
	// html/template output is already escaped.
	return template.HTML(buf.String()), nil
}

// Controls derives the control state for running and an in-flight start.
func Controls(running, starting bool) ControlsView {
	v := ControlsView{
		Running:    running,
		Starting:   starting,
		StartLabel: "Start",
		StartIcon:  "fa-play",
	}
	switch {
	case starting:
		v.StartDisabled = true
		v.StopDisabled = true
		v.StartLabel = "Starting..."
		v.StartIcon = "fa-spinner fa-spin"
		v.BadgeLabel = "Stopped"
		v.BadgeClass = "badge bg-secondary me-2"
	case running:
		v.StartDisabled = true
		v.StopDisabled = false
		v.BadgeLabel = "Running"
		v.BadgeClass = "badge bg-success me-2"
	default:
		v.StartDisabled = false
		v.StopDisabled = true
		v.BadgeLabel = "Stopped"
		v.BadgeClass = "badge bg-secondary me-2"
	}
	return v
}

// RenderControls renders the control buttons and badge.
func (r *Renderer) RenderControls(running, starting bool) (template.HTML, error) {
	return r.execute(RegionControls, Controls(running, starting))
}

// Status derives the status region view. lastCheck may be nil when the
// backend never reported one.
func (r *Renderer) Status(running bool, lastCheck *core.Timestamp, errorCount int, lastSignal *core.Signal) StatusView {
	v := StatusView{
		Running:     running,
		StatusLabel: "Stopped",
		StatusClass: "fw-bold status-stopped",
		LastCheck:   "-",
		ErrorCount:  errorCount,
		LastSignal:  "None",
	}
	if running {
		v.StatusLabel = "Running"
		v.StatusClass = "fw-bold status-running"
	}
	if lastCheck != nil && !lastCheck.IsZero() {
		v.LastCheck = r.format.Time(*lastCheck)
	}
	if lastSignal != nil {
		v.LastSignal = fmt.Sprintf("%s - %s", lastSignal.Type, r.format.Money(lastSignal.Entry))
	}
	return v
}

// RenderStatus renders the status region.
func (r *Renderer) RenderStatus(v StatusView) (template.HTML, error) {
	return r.execute(RegionStatus, v)
}

// RenderPrice renders the price and indicator region.
func (r *Renderer) RenderPrice(p core.PriceSnapshot) (template.HTML, error) {
	v := priceView{
		Price:       r.format.Money(p.Price),
		Change:      r.format.Change(p.Change24h),
		ChangeClass: "h5 mb-0 price-positive",
		EMA13:       r.format.Fixed(p.EMA13),
		EMA55:       r.format.Fixed(p.EMA55),
		ATR:         r.format.Number(p.ATR),
	}
	if p.Change24h < 0 {
		v.ChangeClass = "h5 mb-0 price-negative"
	}
	if p.Volume24h > 0 {
		v.Volume = r.format.Money(p.Volume24h)
	}
	return r.execute(RegionPrice, v)
}

func (r *Renderer) signal(s core.Signal) signalView {
	v := signalView{
		Long:       s.Type.IsLong(),
		Type:       string(s.Type),
		Class:      "signal-short",
		Icon:       "fa-arrow-down",
		BadgeClass: "badge-short",
		Entry:      r.format.Money(s.Entry),
		StopLoss:   r.format.Money(s.StopLoss),
		TakeProfit: r.format.Money(s.TakeProfit),
		ATR:        r.format.Number(s.ATR),
		Time:       r.format.Time(s.Timestamp),
	}
	if v.Long {
		v.Class = "signal-long"
		v.Icon = "fa-arrow-up"
		v.BadgeClass = "badge-long"
	}
	return v
}

// RenderSignalDetails renders the latest signal panel. nil renders the
// empty placeholder.
func (r *Renderer) RenderSignalDetails(s *core.Signal) (template.HTML, error) {
	if s == nil {
		return r.execute(RegionSignalDetails, nil)
	}
	return r.execute(RegionSignalDetails, r.signal(*s))
}

// RenderSignalsTable renders one row per signal in the given order, or a
// single placeholder row when there are none.
func (r *Renderer) RenderSignalsTable(signals []core.Signal) (template.HTML, error) {
	rows := make([]signalView, len(signals))
	for i, s := range signals {
		rows[i] = r.signal(s)
	}
	return r.execute(RegionSignalsTable, rows)
}

// RenderNotifications renders the notification stack.
func (r *Renderer) RenderNotifications(notices []Notice) (template.HTML, error) {
	return r.execute(RegionNotifications, notices)
}
