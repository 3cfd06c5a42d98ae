package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/capscan/internal/app"
	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/server"
)

type serveCmd struct {
	port int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the results CSV over HTTP" }
func (*serveCmd) Usage() string {
	return `capscan serve [-port <port>]

  Serves the results CSV as an HTML table and a JSON API. POST /api/refresh
  starts a background scan; [server] refresh_interval schedules them.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "HTTP port. Overrides [server] port.")
}

func (c *serveCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := loadApp(func(config *common.Config) {
		if c.port > 0 {
			config.Server.Port = c.port
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		return subcommands.ExitFailure
	}
	common.PrintBanner(a.Config, a.Logger)
	return c.run(a)
}

// run serves until interrupted, then shuts down gracefully.
func (c *serveCmd) run(a *app.App) subcommands.ExitStatus {
	if err := a.StartRefreshScheduler(); err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		a.Close()
		return subcommands.ExitFailure
	}
	srv := server.NewServer(a)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	a.Logger.Info().
		Str("addr", srv.Addr()).
		Str("url", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)).
		Msg("Viewer ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	status := subcommands.ExitSuccess
	select {
	case <-sigChan:
		a.Logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		a.Logger.Error().Err(err).Msg("HTTP server failed")
		status = subcommands.ExitFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	common.PrintShutdownBanner(a.Logger)
	a.Close()
	return status
}
