package cmd

import (
	"github.com/urfave/cli/v2"

	"noticeboard/db"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Creates the board_posts table, and on PostgreSQL the trigger that publishes its changes. Will create the SQLite database file if it does not exist.`,
		Flags:       databaseFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			return db.Migrate(cfg.Database.Driver, cfg.Database.DSN)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migrations",
		Description: `Rolls back the last database migration, or as many as --steps says`,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:  "steps",
				Usage: "Number of migrations to roll back",
				Value: 1,
			},
		}, databaseFlags()...),
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			return db.Rollback(cfg.Database.Driver, cfg.Database.DSN, ctx.Int("steps"))
		},
	}
}
