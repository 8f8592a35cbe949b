package clicommand

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/embj-org/ej/dispatcher"
	"github.com/embj-org/ej/internal/socket"
	"github.com/embj-org/ej/internal/store/sqlite"
)

var DispatcherStartCommand = cli.Command{
	Name:  "start",
	Usage: "Starts the ej dispatcher",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "listen",
			Value:  ":8420",
			Usage:  "Address the websocket listener binds to",
			EnvVar: "EJ_DISPATCHER_LISTEN",
		},
		cli.StringFlag{
			Name:   "control-socket",
			Value:  defaultControlSocketPath,
			Usage:  "Path to the local control socket used by the ej client CLI",
			EnvVar: "EJ_DISPATCHER_CONTROL_SOCKET",
		},
		cli.StringFlag{
			Name:   "db",
			Value:  "ej-dispatcher.db",
			Usage:  "Path to the sqlite database file",
			EnvVar: "EJ_DISPATCHER_DB",
		},
	},
	Action: func(c *cli.Context) error {
		log := newLogger()

		st, err := sqlite.Open(c.String("db"))
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		d := dispatcher.New(log, st)
		d.Start()
		defer d.Stop()

		controlSrv, err := socket.NewServer(c.String("control-socket"), dispatcher.NewControlHandler(d, log))
		if err != nil {
			return fmt.Errorf("creating control socket: %w", err)
		}
		if err := controlSrv.Start(); err != nil {
			return fmt.Errorf("starting control socket: %w", err)
		}
		defer controlSrv.Close()
		log.Info("control socket listening at %s", c.String("control-socket"))

		wsHandler := dispatcher.NewWSHandler(d, log)
		httpSrv := &http.Server{Addr: c.String("listen"), Handler: wsHandler}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("websocket listener: %v", err)
			}
		}()
		log.Info("websocket listener listening at %s", c.String("listen"))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}
