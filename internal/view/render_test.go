package view

import (
	"strings"
	"testing"
	"time"

	"github.com/newthinker/botdash/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(DefaultFormatter())
	require.NoError(t, err)
	return r
}

func longSignal() core.Signal {
	return core.Signal{
		Timestamp:  core.ParseTimestamp("2026-10-17T09:30:00Z", nil),
		Type:       core.SignalLong,
		Entry:      100.5,
		StopLoss:   99,
		TakeProfit: 105,
		ATR:        1.2,
	}
}

func TestRenderSignalDetails_Long(t *testing.T) {
	r := newTestRenderer(t)
	sig := longSignal()

	html, err := r.RenderSignalDetails(&sig)
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "fa-arrow-up")
	assert.Contains(t, out, "signal-long")
	assert.Contains(t, out, "$100.50")
	assert.Contains(t, out, "$99.00")
	assert.Contains(t, out, "$105.00")
	assert.Contains(t, out, "17/10/2026, 09:30:00")
}

func TestRenderSignalDetails_Short(t *testing.T) {
	r := newTestRenderer(t)
	sig := longSignal()
	sig.Type = core.SignalShort

	html, err := r.RenderSignalDetails(&sig)
	require.NoError(t, err)
	assert.Contains(t, string(html), "fa-arrow-down")
	assert.Contains(t, string(html), "signal-short")
	assert.NotContains(t, string(html), "fa-arrow-up")
}

func TestRenderSignalDetails_Nil(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderSignalDetails(nil)
	require.NoError(t, err)
	assert.Contains(t, string(html), "No signal yet")
}

func TestRenderSignalsTable_Empty(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderSignalsTable([]core.Signal{})
	require.NoError(t, err)

	out := string(html)
	assert.Equal(t, 1, strings.Count(out, "<tr>"), "expected exactly one placeholder row")
	assert.Contains(t, out, "No signals available")
	assert.Contains(t, out, `colspan="6"`)
}

func TestRenderSignalsTable_Rows(t *testing.T) {
	r := newTestRenderer(t)
	short := longSignal()
	short.Type = core.SignalShort
	short.Entry = 200

	html, err := r.RenderSignalsTable([]core.Signal{short, longSignal()})
	require.NoError(t, err)

	out := string(html)
	assert.Equal(t, 2, strings.Count(out, "<tr>"))
	assert.NotContains(t, out, "No signals available")
	// Backend order is kept
	assert.Less(t, strings.Index(out, "badge-short"), strings.Index(out, "badge-long"))
	assert.Contains(t, out, "$200.00")
	assert.Contains(t, out, "<td>1.20</td>")
}

func TestRender_EscapesBackendStrings(t *testing.T) {
	r := newTestRenderer(t)
	sig := longSignal()
	sig.Type = core.SignalType(`<script>alert(1)</script>`)
	sig.Timestamp = core.ParseTimestamp(`<img src=x onerror=alert(1)>`, nil)

	html, err := r.RenderSignalsTable([]core.Signal{sig})
	require.NoError(t, err)

	out := string(html)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<img")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestRenderNotifications_EscapesMessage(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderNotifications([]Notice{
		{ID: "n1", Level: LevelDanger, Message: `<b>boom</b>`},
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "alert-danger")
	assert.Contains(t, out, "&lt;b&gt;boom&lt;/b&gt;")
	assert.Contains(t, out, "/notifications/n1/dismiss")
}

func TestRenderNotifications_Empty(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderNotifications(nil)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(html)))
}

func TestControls(t *testing.T) {
	tests := []struct {
		name          string
		running       bool
		starting      bool
		startDisabled bool
		stopDisabled  bool
		badge         string
	}{
		{"stopped", false, false, false, true, "Stopped"},
		{"starting", false, true, true, true, "Stopped"},
		{"running", true, false, true, false, "Running"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Controls(tc.running, tc.starting)
			assert.Equal(t, tc.startDisabled, v.StartDisabled)
			assert.Equal(t, tc.stopDisabled, v.StopDisabled)
			assert.Equal(t, tc.badge, v.BadgeLabel)
		})
	}
}

func TestRenderControls_Starting(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderControls(false, true)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Starting...")
	assert.Contains(t, string(html), "fa-spinner")
}

func TestRenderStatus(t *testing.T) {
	r := newTestRenderer(t)

	v := r.Status(false, nil, 3, nil)
	assert.Equal(t, "Stopped", v.StatusLabel)
	assert.Equal(t, "-", v.LastCheck)
	assert.Equal(t, "None", v.LastSignal)

	html, err := r.RenderStatus(v)
	require.NoError(t, err)
	assert.Contains(t, string(html), `<dd class="col-6" id="error-count">3</dd>`)
	assert.Contains(t, string(html), "status-stopped")
}

func TestRenderStatus_LastSignalText(t *testing.T) {
	r := newTestRenderer(t)
	sig := longSignal()
	check := core.ParseTimestamp("2026-10-17T10:00:00Z", nil)

	v := r.Status(true, &check, 0, &sig)
	assert.Equal(t, "LONG - $100.50", v.LastSignal)
	assert.Equal(t, "17/10/2026, 10:00:00", v.LastCheck)
	assert.Equal(t, "fw-bold status-running", v.StatusClass)
}

func TestRenderPrice(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderPrice(core.PriceSnapshot{
		Price: 67432.1, Change24h: 1.5, EMA13: 67000, EMA55: 66500.5, ATR: 350.256,
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "$67,432.10")
	// html/template escapes '+' in text
	assert.Contains(t, out, "&#43;1.50%")
	assert.Contains(t, out, "price-positive")
	assert.Contains(t, out, "350.26")
	assert.Contains(t, out, "$67000.00")
	assert.Contains(t, out, "$66500.50")
	assert.NotContains(t, out, "volume-24h")
}

func TestRenderPrice_NegativeAndVolume(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderPrice(core.PriceSnapshot{Price: 10, Change24h: -2.5, Volume24h: 1000})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "-2.50%")
	assert.Contains(t, out, "price-negative")
	assert.Contains(t, out, "volume-24h")
}

func TestRenderPrice_ZeroChangeIsPositive(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.RenderPrice(core.PriceSnapshot{Price: 10})
	require.NoError(t, err)
	assert.Contains(t, string(html), "price-positive")
	assert.Contains(t, string(html), ">0.00%<")
}

func TestFormatter(t *testing.T) {
	f, err := NewFormatter("es-ES", "UTC", "2006-01-02 15:04")
	require.NoError(t, err)

	assert.Equal(t, "$100,50", f.Money(100.5))
	assert.Equal(t, "$1234.50", f.Fixed(1234.5))
	assert.Equal(t, "+1,25%", f.Change(1.25))
	assert.Equal(t, "2026-10-17 09:30", f.Time(core.ParseTimestamp("2026-10-17T09:30:00Z", nil)))
	assert.Equal(t, "not a time", f.Time(core.Timestamp{Raw: "not a time"}))
}

func TestFormatter_Timezone(t *testing.T) {
	f, err := NewFormatter("en-US", "America/New_York", "15:04")
	require.NoError(t, err)

	ts := core.Timestamp{Raw: "x", Time: time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)}
	assert.Equal(t, "12:00", f.Time(ts))
}

func TestNewFormatter_Errors(t *testing.T) {
	_, err := NewFormatter("en-US", "Nowhere/Atlantis", "")
	assert.Error(t, err)

	_, err = NewFormatter("??", "UTC", "")
	assert.Error(t, err)
}
