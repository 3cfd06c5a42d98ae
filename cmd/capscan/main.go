// Command capscan scans Capital.com markets, exports lookback performance to
// CSV and serves the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/bobmcallan/capscan/internal/app"
	"github.com/bobmcallan/capscan/internal/common"
)

// as a CLI application the flags live for the whole process.
var configPath = flag.String("config", "", "Path to capscan.toml (defaults to $CAPSCAN_CONFIG, then capscan.toml next to the binary)")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&runCmd{}, "scan")
	commander.Register(&fetchCmd{}, "scan")
	commander.Register(&viewCmd{}, "results")
	commander.Register(&serveCmd{}, "results")
	commander.Register(&versionCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// loadApp builds the application from the -config flag. mutate, when set,
// applies command-line overrides before the components are wired.
func loadApp(mutate func(*common.Config), opts ...app.Option) (*app.App, error) {
	if mutate == nil {
		return app.NewApp(*configPath, opts...)
	}
	config, err := common.LoadConfig(resolveConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	mutate(config)
	return app.New(config, common.NewLoggerFromConfig(config.Logging), opts...)
}

func resolveConfig() string {
	return app.ResolveConfigPath(*configPath)
}
