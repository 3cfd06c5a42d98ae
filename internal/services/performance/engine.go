// Package performance computes multi-horizon percentage changes for one instrument.
package performance

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

const (
	// DailyTolerance bounds how far before a window's target the nearest daily
	// bar may lie. Five calendar days covers a weekend plus a holiday run and is
	// the YTD fallback bound when the last trading day of the year is missing.
	DailyTolerance = 5 * 24 * time.Hour

	// WeeklyTolerance is the same bound for weekly bars.
	WeeklyTolerance = 14 * 24 * time.Hour

	// dailyPadding and weeklyPadding extend each fetch range past its longest
	// target so the tolerance window is always inside the requested range.
	dailyPadding  = 10
	weeklyPadding = 21
)

// windowSpec describes how one window finds its baseline.
type windowSpec struct {
	window     models.Window
	resolution models.Resolution
	target     func(now time.Time) time.Time
}

func back(years, months, days int) func(time.Time) time.Time {
	return func(now time.Time) time.Time {
		return now.AddDate(-years, -months, -days)
	}
}

// yearEnd is the last instant of the prior calendar year.
func yearEnd(now time.Time) time.Time {
	return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
}

var windowSpecs = [models.NumWindows]windowSpec{
	{models.Window1W, models.ResolutionDay, back(0, 0, 7)},
	{models.Window1M, models.ResolutionDay, back(0, 1, 0)},
	{models.Window3M, models.ResolutionDay, back(0, 3, 0)},
	{models.Window6M, models.ResolutionDay, back(0, 6, 0)},
	{models.WindowYTD, models.ResolutionDay, yearEnd},
	{models.Window1Y, models.ResolutionDay, back(1, 0, 0)},
	{models.Window5Y, models.ResolutionWeek, back(5, 0, 0)},
	{models.Window10Y, models.ResolutionWeek, back(10, 0, 0)},
}

// Engine computes PerformanceResults from the upstream price history.
type Engine struct {
	prices interfaces.PriceSource
	logger *common.Logger
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used to place window targets.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a performance engine reading history from prices.
func NewEngine(prices interfaces.PriceSource, logger *common.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	e := &Engine{
		prices: prices,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute returns the eight window values for epic relative to currentPrice.
//
// Two history requests are made: daily bars covering a little over a year for
// 1W through 1Y, and weekly bars covering a little over ten years for 5Y and
// 10Y. Any gap, short history or failed request leaves the affected windows
// unavailable. The error is non-nil only when the session has expired.
func (e *Engine) Compute(ctx context.Context, sess *models.Session, epic string, currentPrice *float64) (models.PerformanceResult, error) {
	var result models.PerformanceResult
	if currentPrice == nil {
		e.logger.Debug().Str("epic", epic).Msg("No current price, performance unavailable")
		return result, nil
	}

	now := e.now().UTC()

	daily, err := e.fetch(ctx, sess, epic, models.ResolutionDay, now.AddDate(-1, 0, -dailyPadding), now)
	if err != nil {
		return result, err
	}

	// A daily series that starts after the 1Y target means the instrument is
	// younger than a year, so the long windows cannot have a baseline.
	var weekly []models.PriceBar
	if len(daily) == 0 || !daily[0].Time.After(now.AddDate(-1, 0, 0)) {
		weekly, err = e.fetch(ctx, sess, epic, models.ResolutionWeek, now.AddDate(-10, 0, -weeklyPadding), now)
		if err != nil {
			return result, err
		}
	}

	result = Evaluate(now, *currentPrice, daily, weekly)

	e.logger.Debug().
		Str("epic", epic).
		Int("daily_bars", len(daily)).
		Int("weekly_bars", len(weekly)).
		Int("available", result.AvailableCount()).
		Msg("Performance computed")

	return result, nil
}

// fetch returns the bars for one resolution. Failures other than an expired
// session are logged and yield an empty series.
func (e *Engine) fetch(ctx context.Context, sess *models.Session, epic string, res models.Resolution, from, to time.Time) ([]models.PriceBar, error) {
	bars, err := e.prices.GetPrices(ctx, sess, epic,
		interfaces.WithResolution(res),
		interfaces.WithDateRange(from, to),
	)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionExpired) {
			return nil, err
		}
		e.logger.Debug().Err(err).Str("epic", epic).Str("resolution", string(res)).Msg("Price history unavailable")
		return nil, nil
	}
	return bars, nil
}

// Evaluate computes every window from already-fetched series. daily and
// weekly must be sorted oldest first. The result depends only on its inputs.
func Evaluate(now time.Time, current float64, daily, weekly []models.PriceBar) models.PerformanceResult {
	var result models.PerformanceResult
	for _, spec := range windowSpecs {
		bars, tolerance := daily, DailyTolerance
		if spec.resolution == models.ResolutionWeek {
			bars, tolerance = weekly, WeeklyTolerance
		}
		base, ok := BaselineAt(bars, spec.target(now), tolerance)
		if !ok {
			continue
		}
		result[spec.window] = models.PercentChange(current, base)
	}
	return result
}

// BaselineAt returns the close of the latest bar at or before target, provided
// it is no more than tolerance earlier than target.
func BaselineAt(bars []models.PriceBar, target time.Time, tolerance time.Duration) (float64, bool) {
	i := sort.Search(len(bars), func(i int) bool {
		return bars[i].Time.After(target)
	})
	if i == 0 {
		return 0, false
	}
	bar := bars[i-1]
	if target.Sub(bar.Time) > tolerance {
		return 0, false
	}
	return bar.Close, true
}

// TargetFor returns the baseline instant of w relative to now.
func TargetFor(w models.Window, now time.Time) time.Time {
	return windowSpecs[w].target(now)
}

var _ interfaces.PerformanceEngine = (*Engine)(nil)
