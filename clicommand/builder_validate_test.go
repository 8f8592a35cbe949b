package clicommand

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embj-org/ej/builder"
	"github.com/embj-org/ej/builder/checkout"
	"github.com/embj-org/ej/internal/config"
	"github.com/embj-org/ej/logger"
)

func discardLogger() logger.Logger {
	return logger.NewConsoleLogger(logger.NewTextPrinter(io.Discard), func(int) {})
}

func writeTestScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newValidateTestCfg(buildScript, runScript, resultsPath string) *config.BuilderConfig {
	return &config.BuilderConfig{
		Version: "1",
		Boards: []config.Board{
			{
				Name: "board-a",
				Configs: []config.BoardConfig{
					{Name: "cfg-a", BuildScript: buildScript, RunScript: runScript, ResultsPath: resultsPath},
				},
			},
		},
	}
}

func TestRunValidateSuccess(t *testing.T) {
	scriptDir := t.TempDir()
	build := writeTestScript(t, scriptDir, "build.sh", "echo building\nexit 0\n")
	run := writeTestScript(t, scriptDir, "run.sh", "echo running\nexit 0\n")

	cfg := newValidateTestCfg(build, run, "")
	b := builder.New(cfg, "/etc/ej/builder.toml", discardLogger(), checkout.NoOp{}, t.TempDir(), t.TempDir())

	var stdout, stderr bytes.Buffer
	success, err := runValidate(context.Background(), &stdout, &stderr, b)

	require.NoError(t, err)
	require.True(t, success)
	require.Contains(t, stdout.String(), "building")
	require.Contains(t, stdout.String(), "running")
}

func TestRunValidateBuildFailureSkipsRun(t *testing.T) {
	scriptDir := t.TempDir()
	build := writeTestScript(t, scriptDir, "build.sh", "echo boom\nexit 1\n")
	run := writeTestScript(t, scriptDir, "run.sh", "echo should-not-run\nexit 0\n")

	cfg := newValidateTestCfg(build, run, "")
	b := builder.New(cfg, "/etc/ej/builder.toml", discardLogger(), checkout.NoOp{}, t.TempDir(), t.TempDir())

	var stdout, stderr bytes.Buffer
	success, err := runValidate(context.Background(), &stdout, &stderr, b)

	require.NoError(t, err)
	require.False(t, success)
	require.Contains(t, stdout.String(), "boom")
	require.NotContains(t, stdout.String(), "should-not-run")
}
