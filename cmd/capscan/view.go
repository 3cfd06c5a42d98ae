package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/export"
	"github.com/bobmcallan/capscan/internal/storage"
	"github.com/bobmcallan/capscan/internal/viewer"
)

type viewCmd struct {
	file    string
	metrics string
	top     int
	style   string
	width   int
	chart   bool
}

func (*viewCmd) Name() string     { return "view" }
func (*viewCmd) Synopsis() string { return "print a summary of the results CSV" }
func (*viewCmd) Usage() string {
	return `capscan view [-file <file.csv>] [-metrics "Perf % 1W,Perf % 1Y"] [-top N] [-style dark] [-chart]

  Prints totals, the breakdown by category and the top and bottom performers
  for each metric. -chart also writes category-1m.png next to the CSV.
`
}

func (c *viewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "Results CSV to read. Defaults to [output] csv_path.")
	f.StringVar(&c.metrics, "metrics", "", "Comma separated columns to rank by. Defaults to [viewer] metrics.")
	f.IntVar(&c.top, "top", 0, "Number of top and bottom performers. Defaults to [viewer] top_n.")
	f.StringVar(&c.style, "style", "", "glamour style (dark, light, notty, ascii, auto). Defaults to [viewer] style.")
	f.IntVar(&c.width, "width", 100, "Word wrap width.")
	f.BoolVar(&c.chart, "chart", false, "Also write the average 1M performance chart next to the CSV.")
}

func (c *viewCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	config, err := common.LoadConfig(resolveConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		return subcommands.ExitFailure
	}

	path := c.file
	if path == "" {
		path = config.Output.CSVPath
	}
	records, err := export.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "✗ %s not found. Run \"capscan fetch\" first.\n", path)
		} else {
			fmt.Fprintln(os.Stderr, "✗", err)
		}
		return subcommands.ExitFailure
	}

	opts := viewer.SummaryOptions{
		Source:  path,
		Metrics: config.Viewer.Metrics,
		TopN:    config.Viewer.TopN,
	}
	if c.metrics != "" {
		opts.Metrics = nil
		for _, m := range strings.Split(c.metrics, ",") {
			if m = strings.TrimSpace(m); m != "" {
				opts.Metrics = append(opts.Metrics, m)
			}
		}
	}
	if c.top > 0 {
		opts.TopN = c.top
	}
	style := config.Viewer.Style
	if c.style != "" {
		style = c.style
	}

	out, err := viewer.Render(viewer.SummaryMarkdown(records, opts), style, c.width)
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)

	store, err := storage.NewFileStore(common.NewSilentLogger(), &common.OutputConfig{
		CSVPath:  path,
		Versions: config.Output.Versions,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		return subcommands.ExitFailure
	}
	if versions := store.Versions(); len(versions) > 0 {
		fmt.Printf("Previous results: %s\n", strings.Join(versions, ", "))
	}

	if c.chart {
		png, err := viewer.RenderCategoryChart(records, viewer.ChartColumn)
		if err != nil {
			fmt.Fprintln(os.Stderr, "✗", err)
			return subcommands.ExitFailure
		}
		written, err := store.WriteRaw("category-1m.png", png)
		if err != nil {
			fmt.Fprintln(os.Stderr, "✗", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Chart written to %s\n", written)
	}
	return subcommands.ExitSuccess
}
