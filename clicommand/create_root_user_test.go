package clicommand

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunCreateRootUserSuccess(t *testing.T) {
	path := serveOnUnixSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/create-root-user", r.URL.Path)
		var req createRootUserRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req.Username)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createRootUserResponse{ClientID: "client-1"})
	}))

	clientID, err := runCreateRootUser(context.Background(), path, "alice", "hunter2")

	require.NoError(t, err)
	require.Equal(t, "client-1", clientID)
}

func TestRunCreateRootUserConnectFailsOnMissingSocket(t *testing.T) {
	_, err := runCreateRootUser(context.Background(), filepath.Join(t.TempDir(), "nope.sock"), "alice", "hunter2")
	require.Error(t, err)
}
