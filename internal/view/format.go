package view

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/newthinker/botdash/internal/core"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders numbers and times for display.
type Formatter struct {
	printer *message.Printer
	loc     *time.Location
	layout  string
}

// NewFormatter builds a formatter for a BCP 47 locale, an IANA zone name
// and a Go time layout.
func NewFormatter(locale, timezone, layout string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parsing locale %q: %w", locale, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	if layout == "" {
		layout = "02/01/2006, 15:04:05"
	}
	return &Formatter{
		printer: message.NewPrinter(tag),
		loc:     loc,
		layout:  layout,
	}, nil
}

// DefaultFormatter formats in en-US and UTC.
func DefaultFormatter() *Formatter {
	return &Formatter{
		printer: message.NewPrinter(language.AmericanEnglish),
		loc:     time.UTC,
		layout:  "02/01/2006, 15:04:05",
	}
}

// Location returns the display zone.
func (f *Formatter) Location() *time.Location {
	return f.loc
}

// Money formats v as a dollar amount with two decimals.
func (f *Formatter) Money(v float64) string {
	return "$" + f.printer.Sprintf("%.2f", v)
}

// Fixed formats v as a dollar amount with two decimals and no grouping.
func (f *Formatter) Fixed(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// Number formats v with two decimals.
func (f *Formatter) Number(v float64) string {
	return f.printer.Sprintf("%.2f", v)
}

// Change formats a percentage change, with a leading + when positive.
func (f *Formatter) Change(v float64) string {
	sign := ""
	if v > 0 {
		sign = "+"
	}
	return sign + f.printer.Sprintf("%.2f", v) + "%"
}

// Time formats a backend timestamp. Unparsed values are returned raw.
func (f *Formatter) Time(ts core.Timestamp) string {
	if !ts.Valid() {
		return ts.Raw
	}
	return ts.Time.In(f.loc).Format(f.layout)
}
