// Ej is the client CLI: submit build/run jobs to a dispatcher over its
// local control socket and manage root users and builders.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/clicommand"
)

func main() {
	app := cli.NewApp()
	app.Name = "ej"
	app.Usage = "Client for the ej embedded-job dispatcher"
	app.Commands = clicommand.ClientCommands
	app.ErrWriter = os.Stderr

	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(app.ErrWriter, "ej: unknown subcommand %q\n", command)
		fmt.Fprintf(app.ErrWriter, "Run '%s --help' for usage.\n", c.App.Name)
		os.Exit(1)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(1)
	}
}
