package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embj-org/ej/internal/config"
)

type fakeCheckout struct {
	calls int
	err   error
}

func (f *fakeCheckout) Checkout(dir, remoteURL, commitHash, fetchToken string) error {
	f.calls++
	return f.err
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestCfg(buildScript, runScript, resultsPath string) *config.BuilderConfig {
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

func TestRunBuildSuccess(t *testing.T) {
	scriptDir := t.TempDir()
	build := writeScript(t, scriptDir, "build.sh", "echo building\nexit 0\n")

	cfg := newTestCfg(build, "", "")
	co := &fakeCheckout{}
	b := New(cfg, "/etc/ej/builder.toml", testLogger(), co, t.TempDir(), t.TempDir())

	outcome := b.RunBuild(context.Background(), "https://example.com/repo.git", "deadbeef", "")

	require.True(t, outcome.Success)
	require.Equal(t, 1, co.calls)
	require.Contains(t, outcome.Logs["board-a/cfg-a"], "building")
}

func TestRunBuildScriptFailureStopsAndReportsError(t *testing.T) {
	scriptDir := t.TempDir()
	build := writeScript(t, scriptDir, "build.sh", "echo boom\nexit 1\n")

	cfg := newTestCfg(build, "", "")
	co := &fakeCheckout{}
	b := New(cfg, "/etc/ej/builder.toml", testLogger(), co, t.TempDir(), t.TempDir())

	outcome := b.RunBuild(context.Background(), "https://example.com/repo.git", "deadbeef", "")

	require.False(t, outcome.Success)
	require.NotEmpty(t, outcome.ErrorSummary)
}

func TestRunBuildCheckoutFailureSkipsScripts(t *testing.T) {
	cfg := newTestCfg("/does/not/matter", "", "")
	co := &fakeCheckout{err: os.ErrNotExist}
	b := New(cfg, "/etc/ej/builder.toml", testLogger(), co, t.TempDir(), t.TempDir())

	outcome := b.RunBuild(context.Background(), "https://example.com/repo.git", "deadbeef", "")

	require.False(t, outcome.Success)
	require.Empty(t, outcome.Logs)
}

func TestRunRunCollectsResultsFile(t *testing.T) {
	scriptDir := t.TempDir()
	resultsPath := filepath.Join(scriptDir, "results.txt")
	run := writeScript(t, scriptDir, "run.sh", "echo '{\"pass\":true}' > "+resultsPath+"\nexit 0\n")

	cfg := newTestCfg("", run, resultsPath)
	co := &fakeCheckout{}
	b := New(cfg, "/etc/ej/builder.toml", testLogger(), co, t.TempDir(), t.TempDir())

	outcome := b.RunRun(context.Background(), "https://example.com/repo.git", "deadbeef", "")

	require.True(t, outcome.Success)
	require.Contains(t, outcome.Results["board-a/cfg-a"], "pass")
}

func TestRunRunFailureDoesNotAbortSiblingBoards(t *testing.T) {
	scriptDir := t.TempDir()
	failing := writeScript(t, scriptDir, "run_fail.sh", "exit 1\n")
	ok := writeScript(t, scriptDir, "run_ok.sh", "exit 0\n")

	cfg := &config.BuilderConfig{
		Version: "1",
		Boards: []config.Board{
			{Name: "board-a", Configs: []config.BoardConfig{{Name: "cfg-a", RunScript: failing}}},
			{Name: "board-b", Configs: []config.BoardConfig{{Name: "cfg-b", RunScript: ok}}},
		},
	}
	co := &fakeCheckout{}
	b := New(cfg, "/etc/ej/builder.toml", testLogger(), co, t.TempDir(), t.TempDir())

	outcome := b.RunRun(context.Background(), "https://example.com/repo.git", "deadbeef", "")

	require.False(t, outcome.Success)
	require.Contains(t, outcome.Logs, "board-a/cfg-a")
	require.Contains(t, outcome.Logs, "board-b/cfg-b")
}
