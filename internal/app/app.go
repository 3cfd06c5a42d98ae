package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/capscan/internal/clients/capital"
	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
	"github.com/bobmcallan/capscan/internal/services/performance"
	"github.com/bobmcallan/capscan/internal/services/scan"
	"github.com/bobmcallan/capscan/internal/storage"
)

// App holds the initialized client, services and result store.
// It is the shared core used by every capscan subcommand.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Client      interfaces.CapitalClient
	Engine      interfaces.PerformanceEngine
	Scanner     interfaces.ScanService
	Store       interfaces.ResultStore
	Refresher   *Refresher
	StartupTime time.Time

	schedulerCancel context.CancelFunc
	cron            *cron.Cron
}

// Option customises App construction.
type Option func(*options)

type options struct {
	client   interfaces.CapitalClient
	progress func(scan.Progress)
}

// WithClient replaces the Capital.com client, mainly for tests.
func WithClient(c interfaces.CapitalClient) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithProgress reports each processed instrument during a scan.
func WithProgress(fn func(scan.Progress)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath, else CAPSCAN_CONFIG, else capscan.toml
// next to the binary, else capscan.toml in the working directory.
func ResolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("CAPSCAN_CONFIG"); p != "" {
		return p
	}
	p := filepath.Join(getBinaryDir(), "capscan.toml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return "capscan.toml"
}

// NewApp loads configuration and wires every component.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string, opts ...Option) (*App, error) {
	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := common.NewLoggerFromConfig(config.Logging)
	return New(config, logger, opts...)
}

// New wires an App from an already loaded configuration.
func New(config *common.Config, logger *common.Logger, opts ...Option) (*App, error) {
	startupStart := time.Now()

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	scanCfg, err := scan.ConfigFrom(config)
	if err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}

	client := o.client
	if client == nil {
		client = capital.NewClient(
			capital.WithEnvironmentURLs(config.Capital.DemoURL, config.Capital.LiveURL),
			capital.WithLogger(logger),
			capital.WithRateLimit(config.Capital.RateLimit),
			capital.WithTimeout(config.Capital.GetTimeout()),
			capital.WithNodeNames(nodeNames(config.Scan.Nodes)),
			capital.WithNavigation(config.Scan.PageSize, config.Scan.MaxDepth),
		)
	}

	store, err := storage.NewFileStore(logger, &config.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	engine := performance.NewEngine(client, logger)

	var scanOpts []scan.Option
	if o.progress != nil {
		scanOpts = append(scanOpts, scan.WithProgress(o.progress))
	}
	scanner := scan.NewService(client, engine, scanCfg, logger, scanOpts...)

	a := &App{
		Config:      config,
		Logger:      logger,
		Client:      client,
		Engine:      engine,
		Scanner:     scanner,
		Store:       store,
		Refresher:   NewRefresher(scanner, store, logger),
		StartupTime: startupStart,
	}

	logger.Debug().
		Str("environment", config.EnvironmentLabel()).
		Strs("categories", config.Scan.Categories).
		Str("output", store.Path()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// StartRefreshScheduler launches background refreshes on the configured cron
// schedule, else on the configured interval. Neither set is a no-op.
func (a *App) StartRefreshScheduler() error {
	if schedule := a.Config.Server.RefreshSchedule; schedule != "" {
		c, err := newRefreshCron(a.Refresher, a.Logger, schedule)
		if err != nil {
			return err
		}
		a.cron = c
		c.Start()
		a.Logger.Info().Str("schedule", schedule).Msg("Refresh scheduler: started")
		return nil
	}

	interval := a.Config.Server.GetRefreshInterval()
	if interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	a.Logger.Info().Dur("interval", interval).Msg("Refresh scheduler: started")
	go startRefreshScheduler(ctx, a.Refresher, a.Logger, interval)
	return nil
}

// Close stops the scheduler and waits for an in-flight refresh.
func (a *App) Close() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
		a.cron = nil
	}
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Refresher != nil {
		a.Refresher.Wait()
	}
}

func nodeNames(raw map[string]string) map[models.Category]string {
	out := make(map[models.Category]string, len(raw))
	for k, v := range raw {
		if c, err := models.ParseCategory(k); err == nil {
			out[c] = v
		}
	}
	return out
}
