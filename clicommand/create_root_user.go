package clicommand

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/internal/socket"
)

type createRootUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRootUserResponse struct {
	ClientID string `json:"client_id"`
}

var CreateRootUserCommand = cli.Command{
	Name:  "create-root-user",
	Usage: "Creates the first client/owner account on a dispatcher",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "socket",
			Value:  defaultControlSocketPath,
			Usage:  "Path to the dispatcher's local control socket",
			EnvVar: "EJ_CONTROL_SOCKET",
		},
		cli.StringFlag{
			Name:     "username",
			Required: true,
		},
		cli.StringFlag{
			Name:     "password",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		clientID, err := runCreateRootUser(context.Background(), c.String("socket"), c.String("username"), c.String("password"))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "created client %s\n", clientID)
		return nil
	},
}

func runCreateRootUser(ctx context.Context, socketPath, username, password string) (clientID string, err error) {
	sc, err := socket.NewClient(ctx, socketPath, "")
	if err != nil {
		return "", fmt.Errorf("connecting to dispatcher control socket: %w", err)
	}

	req := createRootUserRequest{Username: username, Password: password}
	var resp createRootUserResponse
	if err := sc.Do(ctx, "POST", "http://unix/create-root-user", req, &resp); err != nil {
		return "", fmt.Errorf("creating root user: %w", err)
	}
	return resp.ClientID, nil
}
