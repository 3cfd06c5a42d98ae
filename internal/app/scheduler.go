package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

// RefreshStatus describes the most recent refresh.
type RefreshStatus struct {
	Running    bool               `json:"running"`
	StartedAt  time.Time          `json:"started_at,omitempty"`
	FinishedAt time.Time          `json:"finished_at,omitempty"`
	Error      string             `json:"error,omitempty"`
	Partial    string             `json:"partial,omitempty"`
	Summary    *models.RunSummary `json:"summary,omitempty"`
}

// Refresher re-runs the scan in the background while readers keep serving
// the last saved results. At most one refresh runs at a time; a request made
// while one is running is rejected, not queued.
type Refresher struct {
	scanner interfaces.ScanService
	store   interfaces.ResultStore
	logger  *common.Logger
	now     func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last RefreshStatus
}

// NewRefresher creates a refresher that saves each successful run to store.
func NewRefresher(scanner interfaces.ScanService, store interfaces.ResultStore, logger *common.Logger) *Refresher {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Refresher{
		scanner: scanner,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Trigger starts a background refresh and returns immediately.
// It returns ErrRefreshInProgress when a refresh is already running.
func (r *Refresher) Trigger(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return interfaces.ErrRefreshInProgress
	}
	r.begin()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(context.WithoutCancel(ctx))
	}()
	return nil
}

// RunNow performs a refresh in the calling goroutine.
func (r *Refresher) RunNow(ctx context.Context) (*interfaces.ScanResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, interfaces.ErrRefreshInProgress
	}
	r.begin()
	return r.execute(ctx)
}

// Running reports whether a refresh is in progress.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// Snapshot returns the status of the current or last refresh.
func (r *Refresher) Snapshot() RefreshStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.last
	s.Running = r.running.Load()
	return s
}

// Wait blocks until any background refresh has finished.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

func (r *Refresher) begin() {
	r.mu.Lock()
	r.last = RefreshStatus{StartedAt: r.now()}
	r.mu.Unlock()
}

// execute runs one scan and saves it. A failed run, or one that produced no
// records, leaves the previous results in place; records a failed run did
// build go to the store's partial file.
func (r *Refresher) execute(ctx context.Context) (*interfaces.ScanResult, error) {
	defer r.running.Store(false)

	result, err := r.scanner.Run(ctx)
	saved := false
	if err == nil && len(result.Records) > 0 {
		err = r.store.Save(result.Records)
		saved = err == nil
	}

	var partial string
	if err != nil && result != nil && len(result.Records) > 0 {
		p, perr := r.store.SavePartial(result.Records)
		if perr != nil {
			r.logger.Error().Err(perr).Msg("Failed to save partial results")
		}
		partial = p
	}

	r.mu.Lock()
	r.last.FinishedAt = r.now()
	if result != nil {
		summary := result.Summary
		r.last.Summary = &summary
	}
	if err != nil {
		r.last.Error = err.Error()
	}
	r.last.Partial = partial
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn().Err(err).Msg("Refresh failed, previous results kept")
		return result, err
	}
	if !saved {
		r.logger.Warn().Msg("Refresh returned no records, previous results kept")
		return result, nil
	}
	r.logger.Info().
		Int("records", len(result.Records)).
		Str("path", r.store.Path()).
		Msg("Refresh complete")
	return result, nil
}

// startRefreshScheduler triggers a refresh on a fixed interval until ctx is done.
// A tick that lands while a refresh is running is skipped.
func startRefreshScheduler(ctx context.Context, r *Refresher, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Refresh scheduler: stopped")
			return
		case <-ticker.C:
			if err := r.Trigger(ctx); err != nil {
				logger.Debug().Err(err).Msg("Refresh scheduler: tick skipped")
			}
		}
	}
}

// newRefreshCron schedules a refresh on a cron expression ("0 7 * * 1-5" or
// "@every 1h"). The returned cron is not started.
func newRefreshCron(r *Refresher, logger *common.Logger, schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithLogger(cronLogger{logger}))
	_, err := c.AddFunc(schedule, func() {
		if err := r.Trigger(context.Background()); err != nil {
			logger.Debug().Err(err).Msg("Refresh schedule: run skipped")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return c, nil
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct {
	logger *common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
