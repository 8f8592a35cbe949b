// Ej-dispatcher is the embedded-job fleet dispatcher: a job queue and
// scheduler that accepts submissions over a local control socket and
// drives a websocket protocol with connected builders.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/clicommand"
)

func main() {
	app := cli.NewApp()
	app.Name = "ej-dispatcher"
	app.Usage = "Runs the ej job dispatcher"
	app.Commands = clicommand.DispatcherCommands
	app.ErrWriter = os.Stderr

	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(app.ErrWriter, "ej-dispatcher: unknown subcommand %q\n", command)
		fmt.Fprintf(app.ErrWriter, "Run '%s --help' for usage.\n", c.App.Name)
		os.Exit(1)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(1)
	}
}
