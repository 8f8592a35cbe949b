package clicommand

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/internal/socket"
)

const submitFailedExitCode = 1

// dispatchRequest/dispatchResponse mirror the JSON shape of the dispatcher's
// local control socket (dispatcher.dispatchRequest/dispatchResponse), kept
// independent since those types are unexported.
type dispatchRequest struct {
	CommitHash     string `json:"commit_hash"`
	RemoteURL      string `json:"remote_url"`
	FetchToken     string `json:"fetch_token,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type dispatchResponse struct {
	Success      bool                  `json:"success"`
	ErrorSummary string                `json:"error_summary,omitempty"`
	Logs         []dispatchLogEntry    `json:"logs,omitempty"`
	Results      []dispatchResultEntry `json:"results,omitempty"`
}

type dispatchLogEntry struct {
	BoardConfigID string `json:"board_config_id"`
	Text          string `json:"text"`
}

type dispatchResultEntry struct {
	BoardConfigID string `json:"board_config_id"`
	Text          string `json:"text"`
}

var submitFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "socket",
		Value:  defaultControlSocketPath,
		Usage:  "Path to the dispatcher's local control socket",
		EnvVar: "EJ_CONTROL_SOCKET",
	},
	cli.StringFlag{
		Name:     "commit",
		Usage:    "Commit hash to build/run",
		Required: true,
	},
	cli.StringFlag{
		Name:     "remote",
		Usage:    "Git remote URL",
		Required: true,
	},
	cli.StringFlag{
		Name:   "fetch-token",
		Usage:  "HTTP fetch credential for a private remote",
		EnvVar: "EJ_FETCH_TOKEN",
	},
	cli.IntFlag{
		Name:  "timeout",
		Value: 600,
		Usage: "Seconds to wait before the job is failed with a timeout",
	},
}

var SubmitBuildCommand = cli.Command{
	Name:  "build",
	Usage: "Submits a build job and waits for its terminal outcome",
	Flags: submitFlags,
	Action: func(c *cli.Context) error {
		return submit(c, "/dispatch/build")
	},
}

var SubmitRunCommand = cli.Command{
	Name:  "run",
	Usage: "Submits a run job and waits for its terminal outcome",
	Flags: submitFlags,
	Action: func(c *cli.Context) error {
		return submit(c, "/dispatch/run")
	},
}

func submit(c *cli.Context, path string) error {
	success, err := runSubmit(context.Background(), os.Stdout, os.Stderr, c.String("socket"), path, dispatchRequest{
		CommitHash:     c.String("commit"),
		RemoteURL:      c.String("remote"),
		FetchToken:     c.String("fetch-token"),
		TimeoutSeconds: c.Int("timeout"),
	})
	if err != nil {
		return err
	}
	if !success {
		return cli.NewExitError("job failed", submitFailedExitCode)
	}
	return nil
}

// runSubmit dials the dispatcher's control socket, posts req to path, and
// prints per-board-config log/result sections followed by a summary line.
func runSubmit(ctx context.Context, stdout, stderr io.Writer, socketPath, path string, req dispatchRequest) (success bool, err error) {
	sc, err := socket.NewClient(ctx, socketPath, "")
	if err != nil {
		return false, fmt.Errorf("connecting to dispatcher control socket: %w", err)
	}

	var resp dispatchResponse
	if err := sc.Do(ctx, "POST", "http://unix"+path, req, &resp); err != nil {
		return false, fmt.Errorf("dispatching job: %w", err)
	}

	for _, l := range resp.Logs {
		fmt.Fprintf(stdout, "=== %s log ===\n%s\n", l.BoardConfigID, l.Text)
	}
	for _, r := range resp.Results {
		fmt.Fprintf(stdout, "=== %s result ===\n%s\n", r.BoardConfigID, r.Text)
	}

	if !resp.Success {
		fmt.Fprintf(stderr, "job failed: %s\n", resp.ErrorSummary)
		return false, nil
	}

	fmt.Fprintln(stdout, "job succeeded")
	return true, nil
}
