// Package interfaces defines service contracts for capscan
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/capscan/internal/models"
)

// SessionManager opens and keeps alive the authenticated session.
type SessionManager interface {
	// CreateSession exchanges credentials for a session on the given environment
	CreateSession(ctx context.Context, creds models.Credentials, env models.Environment) (*models.Session, error)

	// KeepAlive pings the API so an idle session does not expire
	KeepAlive(ctx context.Context, sess *models.Session) error
}

// InstrumentLister enumerates the instruments of a category in upstream order.
type InstrumentLister interface {
	ListInstruments(ctx context.Context, sess *models.Session, category models.Category, opts ...ListOption) ([]models.Instrument, error)
}

// DetailFetcher looks up the snapshot and metadata of one instrument.
type DetailFetcher interface {
	GetDetails(ctx context.Context, sess *models.Session, epic string) (*models.MarketDetails, error)
}

// PriceSource returns historical bars for one instrument, oldest first.
type PriceSource interface {
	GetPrices(ctx context.Context, sess *models.Session, epic string, opts ...PriceOption) ([]models.PriceBar, error)
}

// CapitalClient provides access to the Capital.com REST API
type CapitalClient interface {
	SessionManager
	InstrumentLister
	DetailFetcher
	PriceSource
}

// ListOption configures instrument listing
type ListOption func(*ListParams)

// ListParams holds listing parameters
type ListParams struct {
	StopAfter int // stop walking once this many instruments are collected (0 = all)
}

// WithStopAfter stops the navigation walk early once n instruments are known.
func WithStopAfter(n int) ListOption {
	return func(p *ListParams) {
		p.StopAfter = n
	}
}

// PriceOption configures historical price requests
type PriceOption func(*PriceParams)

// PriceParams holds historical price query parameters
type PriceParams struct {
	Resolution models.Resolution
	From       time.Time
	To         time.Time
	Max        int
}

// WithResolution sets the bar size
func WithResolution(r models.Resolution) PriceOption {
	return func(p *PriceParams) {
		p.Resolution = r
	}
}

// WithDateRange sets the date range for the price query
func WithDateRange(from, to time.Time) PriceOption {
	return func(p *PriceParams) {
		p.From = from
		p.To = to
	}
}

// WithMax sets the maximum number of bars returned
func WithMax(max int) PriceOption {
	return func(p *PriceParams) {
		p.Max = max
	}
}
