package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Columns is the exact header of the result file.
var Columns = []string{
	"Category",
	"Symbol",
	"Name",
	"Current Price",
	"Currency",
	"Price Change %",
	"Perf % 1W",
	"Perf % 1M",
	"Perf % 3M",
	"Perf % 6M",
	"Perf % YTD",
	"Perf % 1Y",
	"Perf % 5Y",
	"Perf % 10Y",
	"Market Status",
	"Type",
}

// perfColumnOffset is the index of "Perf % 1W" in Columns.
const perfColumnOffset = 6

// MarketRecord is the flattened per-instrument output row.
type MarketRecord struct {
	Category     string            `json:"category"`
	Symbol       string            `json:"symbol"`
	Name         string            `json:"name"`
	CurrentPrice *float64          `json:"current_price"`
	Currency     string            `json:"currency"`
	PriceChange  Percent           `json:"price_change"`
	Perf         PerformanceResult `json:"-"`
	MarketStatus string            `json:"market_status"`
	Type         string            `json:"type"`
}

// Row renders the record in Columns order.
func (r MarketRecord) Row() []string {
	row := make([]string, 0, len(Columns))
	row = append(row,
		r.Category,
		r.Symbol,
		r.Name,
		formatPrice(r.CurrentPrice),
		orNA(r.Currency),
		r.PriceChange.String(),
	)
	for _, w := range Windows {
		row = append(row, r.Perf[w].String())
	}
	row = append(row, orNA(r.MarketStatus), r.Type)
	return row
}

// Fields renders the record as a column -> value map, as served to viewers.
func (r MarketRecord) Fields() map[string]string {
	row := r.Row()
	m := make(map[string]string, len(Columns))
	for i, c := range Columns {
		m[c] = row[i]
	}
	return m
}

// Value returns the numeric value behind a percentage column.
func (r MarketRecord) Value(column string) (Percent, bool) {
	if column == "Price Change %" {
		return r.PriceChange, true
	}
	for _, w := range Windows {
		if w.Column() == column {
			return r.Perf[w], true
		}
	}
	return Unavailable(), false
}

// ParseRecord is the inverse of Row.
func ParseRecord(row []string) (MarketRecord, error) {
	if len(row) != len(Columns) {
		return MarketRecord{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(row))
	}

	rec := MarketRecord{
		Category:     row[0],
		Symbol:       row[1],
		Name:         row[2],
		Currency:     fromNA(row[4]),
		MarketStatus: fromNA(row[14]),
		Type:         row[15],
	}

	if s := strings.TrimSpace(row[3]); s != "" && s != NotAvailable {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return MarketRecord{}, fmt.Errorf("parse %s %q: %w", Columns[3], s, err)
		}
		if finite(v) {
			rec.CurrentPrice = &v
		}
	}

	var err error
	if rec.PriceChange, err = ParsePercent(row[5]); err != nil {
		return MarketRecord{}, err
	}
	for _, w := range Windows {
		if rec.Perf[w], err = ParsePercent(row[perfColumnOffset+int(w)]); err != nil {
			return MarketRecord{}, err
		}
	}
	return rec, nil
}

func formatPrice(p *float64) string {
	if p == nil || !finite(*p) {
		return NotAvailable
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func fromNA(s string) string {
	if s == NotAvailable {
		return ""
	}
	return s
}

// RunSummary reports the outcome of one scan run.
type RunSummary struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Elapsed          time.Duration `json:"elapsed"`
	Categories       int           `json:"categories"`
	Processed        int           `json:"processed"`
	Skipped          int           `json:"skipped"`
	FailedCategories []string      `json:"failed_categories,omitempty"`
	Reauthenticated  bool          `json:"reauthenticated"`
}
