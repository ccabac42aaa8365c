package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"noticeboard/db"
	"noticeboard/realtime"
	"noticeboard/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the board",
		Description: `Starts the REST server and the realtime websocket server.

Every committed change to the board_posts table is read from the database
(LISTEN/NOTIFY on PostgreSQL, in-process on SQLite) and pushed to the
realtime subscribers whose topic and filter match.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Usage:   "Listen address of the REST server",
				EnvVars: []string{"NOTICEBOARD_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "realtime-address",
				Usage:   "Listen address of the realtime websocket server",
				EnvVars: []string{"NOTICEBOARD_REALTIME_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "allowed-origins",
				Usage:   "Comma separated CORS origins",
				EnvVars: []string{"NOTICEBOARD_ALLOWED_ORIGINS"},
			},
			secretFlag(),
		}, databaseFlags()...),
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}

			store, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			secret := []byte(cfg.Auth.JWTSecret)
			if len(secret) == 0 {
				log.Warn("No jwt secret configured, access keys are not checked")
			}

			bc := realtime.NewBroadcaster()
			app := server.Server(&server.ServerConfig{
				Store:          store,
				Secret:         secret,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			})
			rt := &http.Server{
				Addr:              cfg.Server.RealtimeAddress,
				Handler:           realtime.NewServer(bc, secret).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errs := make(chan error, 3)

			go func() {
				if err := realtime.Pump(runCtx, store, bc); err != nil && !errors.Is(err, context.Canceled) {
					errs <- err
				}
			}()

			go func() {
				log.WithFields(log.Fields{"address": cfg.Server.Address}).Info("Starting REST server")
				if err := app.Listen(cfg.Server.Address); err != nil {
					errs <- err
				}
			}()

			go func() {
				log.WithFields(log.Fields{"address": cfg.Server.RealtimeAddress}).Info("Starting realtime server")
				if err := rt.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errs <- err
				}
			}()

			var runErr error
			select {
			case <-runCtx.Done():
				log.Info("Gracefully shutting down")
			case runErr = <-errs:
				log.WithFields(log.Fields{"error": runErr}).Error("Server failed, shutting down")
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("REST server shutdown")
			}
			if err := rt.Shutdown(shutdownCtx); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("Realtime server shutdown")
			}
			bc.Shutdown()

			log.Info("Done")
			return runErr
		},
	}
}
