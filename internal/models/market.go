// Package models defines data structures for capscan
package models

import (
	"fmt"
	"strings"
	"time"
)

// Category is a market group requested from the upstream navigation tree.
type Category string

const (
	CategoryForex            Category = "forex"
	CategoryCommodities      Category = "commodities"
	CategoryShares           Category = "shares"
	CategoryIndices          Category = "indices"
	CategoryETF              Category = "etf"
	CategoryCryptocurrencies Category = "cryptocurrencies"
)

// KnownCategories lists every category in default display order.
var KnownCategories = []Category{
	CategoryCommodities,
	CategoryForex,
	CategoryIndices,
	CategoryCryptocurrencies,
	CategoryShares,
	CategoryETF,
}

// ParseCategory normalises s and checks it against KnownCategories.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownCategories {
		if c == k {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Title returns the display form used in the Category column ("Forex", "Etf").
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	s := strings.ToLower(string(c))
	return strings.ToUpper(s[:1]) + s[1:]
}

// Instrument is one entry of a category listing.
type Instrument struct {
	Epic string `json:"epic"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// DisplayName returns the instrument name, or the epic when the name is empty.
func (i Instrument) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Epic
}

// Snapshot is the point-in-time market state of an instrument.
type Snapshot struct {
	Bid              *float64  `json:"bid,omitempty"`
	Offer            *float64  `json:"offer,omitempty"`
	PercentageChange Percent   `json:"percentage_change"`
	MarketStatus     string    `json:"market_status"`
	UpdateTime       time.Time `json:"update_time"`
}

// InstrumentMeta is the static description of an instrument.
type InstrumentMeta struct {
	Epic     string `json:"epic"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
}

// MarketDetails is the result of a single-instrument lookup.
type MarketDetails struct {
	Snapshot   Snapshot       `json:"snapshot"`
	Instrument InstrumentMeta `json:"instrument"`
}

// Resolution is a historical bar size accepted by the prices endpoint.
type Resolution string

const (
	ResolutionDay  Resolution = "DAY"
	ResolutionWeek Resolution = "WEEK"
)

// PriceBar is one historical bar reduced to what performance needs.
type PriceBar struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}
