package clicommand

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveOnUnixSocket(t *testing.T, handler http.Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "control.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)

	return path
}

func TestRunSubmitSuccess(t *testing.T) {
	path := serveOnUnixSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dispatch/build", r.URL.Path)
		var req dispatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "deadbeef", req.CommitHash)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dispatchResponse{
			Success: true,
			Logs:    []dispatchLogEntry{{BoardConfigID: "board-a/cfg-a", Text: "ok"}},
		})
	}))

	var stdout, stderr bytes.Buffer
	success, err := runSubmit(context.Background(), &stdout, &stderr, path, "/dispatch/build", dispatchRequest{
		CommitHash: "deadbeef",
		RemoteURL:  "https://example.com/repo.git",
	})

	require.NoError(t, err)
	require.True(t, success)
	require.Contains(t, stdout.String(), "board-a/cfg-a")
	require.Contains(t, stdout.String(), "job succeeded")
}

func TestRunSubmitJobFailure(t *testing.T) {
	path := serveOnUnixSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dispatchResponse{Success: false, ErrorSummary: "script failed"})
	}))

	var stdout, stderr bytes.Buffer
	success, err := runSubmit(context.Background(), &stdout, &stderr, path, "/dispatch/run", dispatchRequest{
		CommitHash: "deadbeef",
		RemoteURL:  "https://example.com/repo.git",
	})

	require.NoError(t, err)
	require.False(t, success)
	require.Contains(t, stderr.String(), "script failed")
}

func TestRunSubmitConnectFailsOnMissingSocket(t *testing.T) {
	var stdout, stderr bytes.Buffer
	_, err := runSubmit(context.Background(), &stdout, &stderr, filepath.Join(t.TempDir(), "nope.sock"), "/dispatch/build", dispatchRequest{})
	require.Error(t, err)
}
