package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"noticeboard/board"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep the board on screen with live updates",
		Flags: clientFlags(),
		Action: func(ctx *cli.Context) error {
			return runSession(ctx, board.ListRoute())
		},
	}
}

func showCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Follow a single post with live updates",
		ArgsUsage: "<id>",
		Flags:     clientFlags(),
		Action: func(ctx *cli.Context) error {
			id, err := postIdArg(ctx)
			if err != nil {
				return err
			}
			return runSession(ctx, board.DetailRoute(id))
		},
	}
}

func runSession(ctx *cli.Context, start board.Route) error {
	cfg, err := settings(ctx)
	if err != nil {
		return err
	}
	svc, feed := services(cfg)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newSession(svc, feed, os.Stdin, os.Stdout).run(runCtx, start)
}
