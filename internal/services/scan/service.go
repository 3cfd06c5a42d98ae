// Package scan runs the sequential fetch-and-compute pass over the configured
// market categories.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

const (
	// DefaultRequestDelay is the pause after every instrument.
	DefaultRequestDelay = 150 * time.Millisecond
	// DefaultKeepAliveEvery is the instrument count between keep-alives.
	DefaultKeepAliveEvery = 20
)

// Config is the run configuration of a Service.
type Config struct {
	Credentials    models.Credentials
	Environment    models.Environment
	Categories     []models.Category
	Limits         Limits
	RequestDelay   time.Duration
	KeepAliveEvery int
}

// ConfigFrom builds a run configuration from the application config.
func ConfigFrom(cfg *common.Config) (Config, error) {
	categories := make([]models.Category, 0, len(cfg.Scan.Categories))
	for _, name := range cfg.Scan.Categories {
		c, err := models.ParseCategory(name)
		if err != nil {
			return Config{}, fmt.Errorf("scan.categories: %w", err)
		}
		categories = append(categories, c)
	}

	limits := DefaultLimits()
	for c, n := range LimitsFromConfig(cfg.Scan.Limits) {
		limits[c] = n
	}

	return Config{
		Credentials: models.Credentials{
			APIKey:     cfg.Capital.APIKey,
			Identifier: cfg.Capital.Identifier,
			Password:   cfg.Capital.Password,
		},
		Environment:    models.EnvironmentFor(cfg.Capital.Demo),
		Categories:     categories,
		Limits:         limits,
		RequestDelay:   cfg.Scan.GetRequestDelay(),
		KeepAliveEvery: cfg.Scan.KeepAliveEvery,
	}, nil
}

// Progress describes one processed instrument.
type Progress struct {
	Category models.Category
	Index    int // 1-based within the category
	Total    int
	Epic     string
	Name     string
	Skipped  bool
}

// Option configures a Service.
type Option func(*Service)

// WithProgress registers a callback invoked after every instrument.
func WithProgress(fn func(Progress)) Option {
	return func(s *Service) {
		s.progress = fn
	}
}

// WithStateHook registers a callback invoked on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Service) {
		s.stateHook = fn
	}
}

// WithSleep replaces the delay function, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		s.sleep = fn
	}
}

// Service implements ScanService against one market client.
type Service struct {
	client    interfaces.CapitalClient
	engine    interfaces.PerformanceEngine
	cfg       Config
	logger    *common.Logger
	progress  func(Progress)
	stateHook func(from, to State)
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewService creates a scan service.
func NewService(client interfaces.CapitalClient, engine interfaces.PerformanceEngine, cfg Config, logger *common.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = DefaultRequestDelay
	}
	if cfg.Limits == nil {
		cfg.Limits = DefaultLimits()
	}
	s := &Service{
		client: client,
		engine: engine,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run authenticates, walks every configured category in order and returns
// every record it could build. Per-instrument and per-category failures are
// logged and skipped; only authentication failures abort the run, in which
// case the records gathered so far are returned with the error.
func (s *Service) Run(ctx context.Context) (*interfaces.ScanResult, error) {
	r := &run{
		svc:     s,
		machine: machine{state: StateIdle, hook: s.stateHook},
		summary: models.RunSummary{
			RunID:      uuid.NewString(),
			StartedAt:  s.now(),
			Categories: len(s.cfg.Categories),
		},
		records: []models.MarketRecord{},
	}

	s.logger.Info().
		Str("run_id", r.summary.RunID).
		Str("environment", s.cfg.Environment.String()).
		Int("categories", len(s.cfg.Categories)).
		Msg("Scan started")

	err := r.execute(ctx)
	r.summary.Elapsed = s.now().Sub(r.summary.StartedAt)
	result := &interfaces.ScanResult{Records: r.records, Summary: r.summary}

	if err != nil {
		s.logger.Error().Err(err).
			Str("run_id", r.summary.RunID).
			Int("processed", r.summary.Processed).
			Msg("Scan failed")
		return result, err
	}

	s.logger.Info().
		Str("run_id", r.summary.RunID).
		Int("processed", r.summary.Processed).
		Int("skipped", r.summary.Skipped).
		Strs("failed_categories", r.summary.FailedCategories).
		Dur("elapsed", r.summary.Elapsed).
		Msg("Scan complete")
	return result, nil
}

// run is the mutable state of one Run call.
type run struct {
	svc      *Service
	machine  machine
	sess     *models.Session
	reauthed bool
	requests int
	summary  models.RunSummary
	records  []models.MarketRecord
}

func (r *run) execute(ctx context.Context) error {
	sess, err := r.svc.client.CreateSession(ctx, r.svc.cfg.Credentials, r.svc.cfg.Environment)
	if err != nil {
		r.machine.to(StateFailed)
		return err
	}
	r.sess = sess
	r.machine.to(StateAuthenticated)

	for _, category := range r.svc.cfg.Categories {
		if err := r.category(ctx, category); err != nil {
			r.machine.to(StateFailed)
			return err
		}
	}

	r.machine.to(StateDone)
	return nil
}

// category lists and processes one category. A non-nil error aborts the run.
func (r *run) category(ctx context.Context, category models.Category) error {
	log := r.svc.logger
	r.machine.to(StateFetching)

	var opts []interfaces.ListOption
	if n, ok := r.svc.cfg.Limits.Cap(category); ok {
		opts = append(opts, interfaces.WithStopAfter(n))
	}

	var instruments []models.Instrument
	err := r.call(ctx, func(sess *models.Session) error {
		var err error
		instruments, err = r.svc.client.ListInstruments(ctx, sess, category, opts...)
		return err
	})
	r.machine.to(StateAdvancing)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		log.Warn().Err(err).Str("category", string(category)).Msg("Category skipped")
		r.summary.FailedCategories = append(r.summary.FailedCategories, string(category))
		return nil
	}

	instruments = r.svc.cfg.Limits.Apply(category, instruments)
	log.Info().Str("category", string(category)).Int("instruments", len(instruments)).Msg("Processing category")

	for i, inst := range instruments {
		r.machine.to(StateFetching)
		rec, err := r.instrument(ctx, inst)
		if err != nil && fatal(ctx, err) {
			return err
		}

		skipped := err != nil
		if skipped {
			r.summary.Skipped++
			log.Warn().Err(err).Str("category", string(category)).Str("epic", inst.Epic).Msg("Instrument skipped")
		} else {
			r.records = append(r.records, BuildRecord(category, inst, rec.details, rec.perf))
			r.summary.Processed++
		}
		if r.svc.progress != nil {
			r.svc.progress(Progress{
				Category: category,
				Index:    i + 1,
				Total:    len(instruments),
				Epic:     inst.Epic,
				Name:     inst.DisplayName(),
				Skipped:  skipped,
			})
		}

		r.requests++
		if every := r.svc.cfg.KeepAliveEvery; every > 0 && r.requests%every == 0 {
			r.machine.to(StateRefreshing)
			if err := r.keepAlive(ctx); err != nil {
				return err
			}
		}

		r.machine.to(StateAdvancing)
		if err := r.svc.sleep(ctx, r.svc.cfg.RequestDelay); err != nil {
			return err
		}
	}
	return nil
}

type fetched struct {
	details *models.MarketDetails
	perf    models.PerformanceResult
}

// instrument fetches details and performance for one instrument.
func (r *run) instrument(ctx context.Context, inst models.Instrument) (fetched, error) {
	var out fetched
	err := r.call(ctx, func(sess *models.Session) error {
		var err error
		out.details, err = r.svc.client.GetDetails(ctx, sess, inst.Epic)
		return err
	})
	if err != nil {
		return out, err
	}

	err = r.call(ctx, func(sess *models.Session) error {
		var err error
		out.perf, err = r.svc.engine.Compute(ctx, sess, inst.Epic, out.details.Snapshot.Bid)
		return err
	})
	if err != nil && !fatal(ctx, err) {
		r.svc.logger.Debug().Err(err).Str("epic", inst.Epic).Msg("Performance unavailable")
		out.perf = models.PerformanceResult{}
		err = nil
	}
	return out, err
}

// keepAlive pings the session. An expired session is re-authenticated once
// through call; any other failure means the session is dead and ends the run.
func (r *run) keepAlive(ctx context.Context) error {
	err := r.call(ctx, func(sess *models.Session) error {
		return r.svc.client.KeepAlive(ctx, sess)
	})
	if err != nil {
		r.svc.logger.Error().Err(err).Int("requests", r.requests).Msg("Keep-alive failed, halting run")
		if errors.Is(err, interfaces.ErrAuth) || errors.Is(err, interfaces.ErrSessionExpired) {
			return err
		}
		return &interfaces.AuthError{Op: "keep-alive", Err: err}
	}
	r.svc.logger.Debug().Int("requests", r.requests).Msg("Session kept alive")
	return nil
}

// call runs op with the current session. On expiry the run re-authenticates
// once and retries op; a second expiry is fatal.
func (r *run) call(ctx context.Context, op func(*models.Session) error) error {
	err := op(r.sess)
	if !errors.Is(err, interfaces.ErrSessionExpired) {
		return err
	}
	if r.reauthed {
		return fmt.Errorf("session expired after re-authentication: %w", err)
	}

	r.svc.logger.Warn().Err(err).Msg("Session expired, re-authenticating")
	r.reauthed = true
	r.summary.Reauthenticated = true

	sess, aerr := r.svc.client.CreateSession(ctx, r.svc.cfg.Credentials, r.svc.cfg.Environment)
	if aerr != nil {
		return fmt.Errorf("re-authenticate: %w", aerr)
	}
	r.sess = sess

	err = op(r.sess)
	if errors.Is(err, interfaces.ErrSessionExpired) {
		return fmt.Errorf("session expired after re-authentication: %w", err)
	}
	return err
}

// fatal reports whether err must abort the run. A transport timeout on one
// request is not fatal; only the cancellation of the run's own ctx is.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, interfaces.ErrAuth) ||
		errors.Is(err, interfaces.ErrSessionExpired)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ interfaces.ScanService = (*Service)(nil)
