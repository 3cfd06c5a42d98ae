package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/capscan/internal/app"
	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
	"github.com/bobmcallan/capscan/internal/services/scan"
)

const rule = "============================================================"

type fetchCmd struct {
	out        string
	categories string
	quiet      bool
}

func (*fetchCmd) Name() string { return "fetch" }
func (*fetchCmd) Synopsis() string {
	return "scan the configured categories and write the results CSV"
}
func (*fetchCmd) Usage() string {
	return `capscan fetch [-out <file.csv>] [-categories forex,indices] [-q]

  Opens a Capital.com session, walks each category in order, computes the
  lookback performance of every instrument and writes the results CSV.
  A failed run leaves the previous CSV untouched.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "out", "", "Output CSV path. Overrides [output] csv_path.")
	f.StringVar(&c.categories, "categories", "", "Comma separated categories to scan. Overrides [scan] categories.")
	f.BoolVar(&c.quiet, "q", false, "Do not print per-instrument progress.")
}

// overrides applies the command-line flags to the loaded config.
func (c *fetchCmd) overrides(config *common.Config) {
	if c.out != "" {
		config.Output.CSVPath = c.out
	}
	if c.categories != "" {
		var cats []string
		for _, s := range strings.Split(c.categories, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				cats = append(cats, s)
			}
		}
		config.Scan.Categories = cats
	}
}

// fetch runs one scan and saves it. The returned app is open on success.
func (c *fetchCmd) fetch(ctx context.Context, stdout io.Writer) (*app.App, error) {
	var opts []app.Option
	if !c.quiet {
		opts = append(opts, app.WithProgress(progressPrinter(stdout)))
	}
	a, err := loadApp(c.overrides, opts...)
	if err != nil {
		return nil, err
	}
	if missing := a.Config.ValidateRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required settings: %s (set them in capscan.toml or .env)", strings.Join(missing, ", "))
	}
	common.PrintBanner(a.Config, a.Logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := a.Refresher.RunNow(ctx)
	printSummary(stdout, result, err, a.Store.Path(), a.Refresher.Snapshot().Partial)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.fetch(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		return subcommands.ExitFailure
	}
	a.Close()
	return subcommands.ExitSuccess
}

// runCmd fetches then serves the fresh results.
type runCmd struct {
	fetchCmd
	serve serveCmd
}

func (*runCmd) Name() string { return "run" }
func (*runCmd) Synopsis() string {
	return "fetch the markets, then serve the results over HTTP"
}
func (*runCmd) Usage() string {
	return `capscan run [-out <file.csv>] [-categories forex,indices] [-q] [-port <port>]

  Equivalent to "capscan fetch" followed by "capscan serve" on the same
  configuration. The viewer is not started when the fetch fails.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	c.fetchCmd.SetFlags(f)
	f.IntVar(&c.serve.port, "port", 0, "HTTP port. Overrides [server] port.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.fetch(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		return subcommands.ExitFailure
	}
	if c.serve.port > 0 {
		a.Config.Server.Port = c.serve.port
	}
	return c.serve.run(a)
}

// progressPrinter reports each processed instrument, with a header at the
// start of every category.
func progressPrinter(w io.Writer) func(scan.Progress) {
	var current models.Category
	return func(p scan.Progress) {
		if p.Category != current {
			current = p.Category
			fmt.Fprintf(w, "\n%s\nProcessing category: %s\n%s\n", rule, strings.ToUpper(string(p.Category)), rule)
		}
		name := p.Name
		if name == "" {
			name = p.Epic
		}
		fmt.Fprintf(w, "  [%d/%d] %s (%s)", p.Index, p.Total, name, p.Epic)
		if p.Skipped {
			fmt.Fprint(w, "  ⚠ skipped")
		}
		fmt.Fprintln(w)
	}
}

// printSummary writes the end-of-run report. partial is the side file holding
// the records of a failed run, if any were written.
func printSummary(w io.Writer, result *interfaces.ScanResult, err error, path, partial string) {
	fmt.Fprintf(w, "\n%s\nExecution Summary\n%s\n", rule, rule)
	if result != nil {
		s := result.Summary
		fmt.Fprintf(w, "Run ID:            %s\n", s.RunID)
		fmt.Fprintf(w, "Total time:        %.2f seconds\n", s.Elapsed.Round(10*time.Millisecond).Seconds())
		fmt.Fprintf(w, "Markets processed: %d\n", s.Processed)
		fmt.Fprintf(w, "Skipped:           %d\n", s.Skipped)
		fmt.Fprintf(w, "Categories:        %d\n", s.Categories)
		if len(s.FailedCategories) > 0 {
			fmt.Fprintf(w, "Failed categories: %s\n", strings.Join(s.FailedCategories, ", "))
		}
		if s.Reauthenticated {
			fmt.Fprintln(w, "Session:           re-authenticated once")
		}
	}
	switch {
	case err != nil:
		fmt.Fprintf(w, "Result:            failed (%v); previous results kept\n", err)
		if partial != "" {
			fmt.Fprintf(w, "Partial results:   %s\n", partial)
		}
	case result != nil && len(result.Records) == 0:
		fmt.Fprintln(w, "Result:            no records; previous results kept")
	case result != nil:
		fmt.Fprintf(w, "Output:            %s (%d rows)\n", path, len(result.Records))
	}
	fmt.Fprintf(w, "%s\n", rule)
}
