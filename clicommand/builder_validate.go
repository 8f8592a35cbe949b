package clicommand

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/builder"
	"github.com/embj-org/ej/builder/checkout"
	"github.com/embj-org/ej/internal/config"
)

const validateFailedExitCode = 1

var BuilderValidateCommand = cli.Command{
	Name:  "validate",
	Usage: "Parses the config and runs one Build+Run locally, bypassing the dispatcher",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:     "config",
			Usage:    "Path to the builder's TOML configuration file",
			Required: true,
		},
		cli.StringFlag{
			Name:  "work-dir",
			Value: ".",
			Usage: "Directory handed to the no-op checkout; validate does not change into it, and scripts run in the current directory",
		},
		cli.StringFlag{
			Name:  "control-dir",
			Value: os.TempDir(),
			Usage: "Scratch directory for per-script control sockets",
		},
	},
	Action: func(c *cli.Context) error {
		configPath, err := filepath.Abs(c.String("config"))
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log := newLogger()
		b := builder.New(cfg, configPath, log, checkout.NoOp{}, c.String("work-dir"), c.String("control-dir"))

		success, err := runValidate(context.Background(), os.Stdout, os.Stderr, b)
		if err != nil {
			return err
		}
		if !success {
			return cli.NewExitError("validation failed", validateFailedExitCode)
		}
		return nil
	},
}

// runValidate runs one Build then, if it succeeds, one Run against b,
// printing logs and results to stdout/stderr as it goes.
func runValidate(ctx context.Context, stdout, stderr io.Writer, b *builder.Builder) (success bool, err error) {
	buildOutcome := b.RunBuild(ctx, "", "", "")
	printOutcome(stdout, stderr, "build", buildOutcome)
	if !buildOutcome.Success {
		return false, nil
	}

	runOutcome := b.RunRun(ctx, "", "", "")
	printOutcome(stdout, stderr, "run", runOutcome)
	return runOutcome.Success, nil
}

func printOutcome(stdout, stderr io.Writer, phase string, outcome builder.Outcome) {
	for key, text := range outcome.Logs {
		fmt.Fprintf(stdout, "=== %s %s log ===\n%s\n", phase, key, text)
	}
	for key, text := range outcome.Results {
		fmt.Fprintf(stdout, "=== %s %s result ===\n%s\n", phase, key, text)
	}
	if !outcome.Success {
		fmt.Fprintf(stderr, "%s: %s\n", phase, outcome.ErrorSummary)
	}
}
