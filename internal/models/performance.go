package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NotAvailable is the presentation value of a missing number.
const NotAvailable = "N/A"

// Percent is an optional percentage. The zero value is unavailable.
// Values keep full precision; rounding happens only in String.
type Percent struct {
	Value float64
	Valid bool
}

// PercentOf returns a valid Percent, or unavailable when v is NaN or infinite.
func PercentOf(v float64) Percent {
	if !finite(v) {
		return Unavailable()
	}
	return Percent{Value: v, Valid: true}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Unavailable returns an invalid Percent.
func Unavailable() Percent {
	return Percent{}
}

// PercentChange returns (current-base)/base*100, or unavailable when base is
// zero or either price is not finite.
func PercentChange(current, base float64) Percent {
	if base == 0 || !finite(current) || !finite(base) {
		return Unavailable()
	}
	return PercentOf((current - base) / base * 100)
}

// String formats as "<value>%" with two decimals, or "N/A".
func (p Percent) String() string {
	if !p.Valid || !finite(p.Value) {
		return NotAvailable
	}
	return decimal.NewFromFloat(p.Value).StringFixed(2) + "%"
}

// ParsePercent parses the output of String. "N/A" and "" are unavailable.
func ParsePercent(s string) (Percent, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NotAvailable {
		return Unavailable(), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return Unavailable(), fmt.Errorf("parse percent %q: %w", s, err)
	}
	return PercentOf(v), nil
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid || !finite(p.Value) {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Unavailable()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PercentOf(v)
	return nil
}

// Window is a named lookback horizon.
type Window int

const (
	Window1W Window = iota
	Window1M
	Window3M
	Window6M
	WindowYTD
	Window1Y
	Window5Y
	Window10Y

	NumWindows = 8
)

// Windows lists every lookback window in column order.
var Windows = [NumWindows]Window{Window1W, Window1M, Window3M, Window6M, WindowYTD, Window1Y, Window5Y, Window10Y}

var windowLabels = [NumWindows]string{"1w", "1m", "3m", "6m", "ytd", "1y", "5y", "10y"}

// Label returns the short lower-case key ("1w", "ytd").
func (w Window) Label() string {
	if w < 0 || int(w) >= NumWindows {
		return fmt.Sprintf("window(%d)", int(w))
	}
	return windowLabels[w]
}

// Column returns the CSV header for the window ("Perf % 1W").
func (w Window) Column() string {
	return "Perf % " + strings.ToUpper(w.Label())
}

func (w Window) String() string { return w.Label() }

// PerformanceResult holds one value per Window; the array length makes
// "exactly eight windows" a property of the type.
type PerformanceResult [NumWindows]Percent

// Get returns the value for w.
func (r PerformanceResult) Get(w Window) Percent {
	return r[w]
}

// AvailableCount returns how many windows hold a value.
func (r PerformanceResult) AvailableCount() int {
	n := 0
	for _, p := range r {
		if p.Valid {
			n++
		}
	}
	return n
}
