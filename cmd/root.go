package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"noticeboard/config"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "noticeboard",
		Usage: "A bulletin board with live updates",
		Description: `A small bulletin board. Posts are kept in PostgreSQL or SQLite
		and every change is pushed to connected readers over a websocket.

		"noticeboard serve" runs the REST and realtime servers. The other
		commands are clients: "watch" keeps a live list on screen, "show"
		follows a single post, "write", "edit" and "delete" change posts.

		Settings are read from a TOML file and can be overridden by flags,
		which can generally be set via environment variables, e.g.:

		--db-dsn => NOTICEBOARD_DB_DSN=board.db
		--endpoint => NOTICEBOARD_ENDPOINT=http://localhost:3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "noticeboard.toml",
				Usage:   "Path to the configuration file, a missing file is ignored",
				EnvVars: []string{"NOTICEBOARD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"NOTICEBOARD_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			// Logs never mix with rendered output
			log.SetOutput(os.Stderr)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			keygenCmd(),
			listCmd(),
			watchCmd(),
			showCmd(),
			changesCmd(),
			writeCmd(),
			editCmd(),
			deleteCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db-driver",
			Usage:   "Database driver, postgres or sqlite",
			EnvVars: []string{"NOTICEBOARD_DB_DRIVER"},
		},
		&cli.StringFlag{
			Name:    "db-dsn",
			Usage:   "PostgreSQL URL or SQLite file path",
			EnvVars: []string{"NOTICEBOARD_DB_DSN"},
		},
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "endpoint",
			Usage:   "URL of the REST server",
			EnvVars: []string{"NOTICEBOARD_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "realtime-endpoint",
			Usage:   "URL of the realtime server",
			EnvVars: []string{"NOTICEBOARD_REALTIME_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "apikey",
			Usage:   "Access key from \"noticeboard keygen\"",
			EnvVars: []string{"NOTICEBOARD_APIKEY"},
		},
	}
}

func secretFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "jwt-secret",
		Usage:   "Secret access keys are signed with, empty disables key checks",
		EnvVars: []string{"NOTICEBOARD_JWT_SECRET"},
	}
}

// settings layers flags and environment over the config file over defaults
func settings(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"log-level":         &cfg.LogLevel,
		"address":           &cfg.Server.Address,
		"realtime-address":  &cfg.Server.RealtimeAddress,
		"allowed-origins":   &cfg.Server.AllowedOrigins,
		"db-driver":         &cfg.Database.Driver,
		"db-dsn":            &cfg.Database.DSN,
		"jwt-secret":        &cfg.Auth.JWTSecret,
		"endpoint":          &cfg.Client.Endpoint,
		"realtime-endpoint": &cfg.Client.RealtimeEndpoint,
		"apikey":            &cfg.Client.AccessKey,
	}
	for name, field := range overrides {
		if ctx.IsSet(name) {
			*field = ctx.String(name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
