package clicommand

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/internal/socket"
)

type createBuilderRequest struct {
	OwnerClientID string `json:"owner_client_id"`
}

type createBuilderResponse struct {
	BuilderID string `json:"builder_id"`
	Token     string `json:"token"`
}

var CreateBuilderCommand = cli.Command{
	Name:  "create-builder",
	Usage: "Registers a new builder under an owner client and prints its id and token",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "socket",
			Value:  defaultControlSocketPath,
			Usage:  "Path to the dispatcher's local control socket",
			EnvVar: "EJ_CONTROL_SOCKET",
		},
		cli.StringFlag{
			Name:     "owner",
			Usage:    "The owning client id (from create-root-user)",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		builderID, token, err := runCreateBuilder(context.Background(), c.String("socket"), c.String("owner"))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "builder id: %s\n", builderID)
		fmt.Fprintf(os.Stdout, "token:      %s\n", token)
		return nil
	},
}

func runCreateBuilder(ctx context.Context, socketPath, ownerClientID string) (builderID, token string, err error) {
	sc, err := socket.NewClient(ctx, socketPath, "")
	if err != nil {
		return "", "", fmt.Errorf("connecting to dispatcher control socket: %w", err)
	}

	req := createBuilderRequest{OwnerClientID: ownerClientID}
	var resp createBuilderResponse
	if err := sc.Do(ctx, "POST", "http://unix/create-builder", req, &resp); err != nil {
		return "", "", fmt.Errorf("creating builder: %w", err)
	}
	return resp.BuilderID, resp.Token, nil
}
