// Ej-builder is the per-machine job orchestrator: it either attaches to a
// dispatcher and waits for work, or runs standalone against a local
// checkout for config validation.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/clicommand"
)

func main() {
	app := cli.NewApp()
	app.Name = "ej-builder"
	app.Usage = "Runs or validates an ej builder"
	app.Commands = clicommand.BuilderCommands
	app.ErrWriter = os.Stderr

	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(app.ErrWriter, "ej-builder: unknown subcommand %q\n", command)
		fmt.Fprintf(app.ErrWriter, "Run '%s --help' for usage.\n", c.App.Name)
		os.Exit(1)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(1)
	}
}
