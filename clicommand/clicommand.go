// Package clicommand holds the urfave/cli command definitions shared by the
// ej-dispatcher, ej-builder, and ej binaries.
package clicommand

import (
	"os"
	"time"

	"github.com/embj-org/ej/logger"
)

func newLogger() logger.Logger {
	return logger.NewConsoleLogger(logger.NewTextPrinter(os.Stderr), os.Exit)
}

const defaultControlSocketPath = "/var/run/ej/dispatcher.sock"

// shutdownGrace is how long a command waits for an in-flight HTTP
// shutdown before giving up.
const shutdownGrace = 10 * time.Second
