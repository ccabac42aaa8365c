package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"noticeboard/auth"
)

func keygenCmd() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Mint an access key",
		Description: `Signs an access key with the configured jwt secret and prints it.

Clients pass the key with --apikey. Both servers reject requests without a
valid key once a secret is configured.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "role",
				Usage: "Role granted by the key, anon or service_role",
				Value: string(auth.RoleAnon),
			},
			&cli.DurationFlag{
				Name:  "expires",
				Usage: "How long the key is valid, 0 never expires",
			},
			secretFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			role, err := auth.ParseRole(ctx.String("role"))
			if err != nil {
				return err
			}

			key, err := auth.GenerateKey(role, []byte(cfg.Auth.JWTSecret), ctx.Duration("expires"))
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}
