package clicommand

import "github.com/urfave/cli"

// DispatcherCommands backs the ej-dispatcher binary.
var DispatcherCommands = []cli.Command{
	DispatcherStartCommand,
}

// BuilderCommands backs the ej-builder binary.
var BuilderCommands = []cli.Command{
	BuilderStartCommand,
	BuilderParseCommand,
	BuilderValidateCommand,
}

// ClientCommands backs the ej binary.
var ClientCommands = []cli.Command{
	CreateRootUserCommand,
	CreateBuilderCommand,
	{
		Name:  "submit",
		Usage: "Submit a job to a dispatcher and wait for its outcome",
		Subcommands: []cli.Command{
			SubmitBuildCommand,
			SubmitRunCommand,
		},
	},
}
