package clicommand

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/internal/config"
)

var BuilderParseCommand = cli.Command{
	Name:  "parse",
	Usage: "Parses and validates a builder configuration file, printing its board/board-config shape",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:     "config",
			Usage:    "Path to the builder's TOML configuration file",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		printConfig(os.Stdout, cfg)
		return nil
	},
}

func printConfig(w io.Writer, cfg *config.BuilderConfig) {
	fmt.Fprintf(w, "version: %s\n", cfg.Version)
	fmt.Fprintf(w, "config hash: %s\n", cfg.Hash)
	for _, b := range cfg.Boards {
		fmt.Fprintf(w, "board %q (%s)\n", b.Name, b.Description)
		for _, bc := range b.Configs {
			fmt.Fprintf(w, "  config %q tags=%v build=%s run=%s results=%s\n",
				bc.Name, bc.Tags, bc.BuildScript, bc.RunScript, bc.ResultsPath)
		}
	}
}
