package clicommand

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/builder"
	"github.com/embj-org/ej/builder/checkout"
	"github.com/embj-org/ej/internal/config"
)

var BuilderStartCommand = cli.Command{
	Name:  "start",
	Usage: "Connects to a dispatcher and runs build/run jobs as they arrive",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:     "config",
			Usage:    "Path to the builder's TOML configuration file",
			Required: true,
		},
		cli.StringFlag{
			Name:     "connect",
			Usage:    "Dispatcher websocket URL, e.g. ws://dispatcher:8420/dispatcher/v1/builders/connect",
			Required: true,
		},
		cli.StringFlag{
			Name:     "builder-id",
			Usage:    "This builder's id, as returned when it was created",
			Required: true,
		},
		cli.StringFlag{
			Name:   "token",
			Usage:  "This builder's auth token",
			EnvVar: "EJ_BUILDER_TOKEN",
		},
		cli.StringFlag{
			Name:  "work-dir",
			Value: "ej-builder-work",
			Usage: "Directory the source tree is checked out into",
		},
		cli.StringFlag{
			Name:  "control-dir",
			Value: os.TempDir(),
			Usage: "Scratch directory for per-script control sockets",
		},
	},
	Action: func(c *cli.Context) error {
		log := newLogger()

		configPath, err := filepath.Abs(c.String("config"))
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		b := builder.New(cfg, configPath, log, checkout.New(), c.String("work-dir"), c.String("control-dir"))
		sess := builder.NewSession(c.String("connect"), c.String("builder-id"), c.String("token"), cfg, b, log)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sess.Run(ctx)
		return nil
	},
}
