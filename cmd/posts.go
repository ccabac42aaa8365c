package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cqroot/prompt"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"noticeboard/board"
	"noticeboard/client"
	"noticeboard/config"
	"noticeboard/models"
	"noticeboard/render"
)

func services(cfg *config.TomlConfig) (*client.Client, *client.Feed) {
	return client.New(cfg.Client.Endpoint, cfg.Client.AccessKey),
		client.NewFeed(cfg.Client.RealtimeEndpoint, cfg.Client.AccessKey)
}

func postIdArg(ctx *cli.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("expected a post id, got %q", ctx.Args().First())
	}
	return id, nil
}

// quietNavigator is used by one-shot commands that have nowhere to go
var quietNavigator = board.NavigatorFunc(func(route board.Route) {
	log.WithFields(log.Fields{"route": route.Path()}).Debug("Navigate")
})

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print the board once",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print one JSON object per post instead of a table",
			},
		}, clientFlags()...),
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			svc, _ := services(cfg)

			posts, err := svc.ListPosts(ctx.Context)
			if err != nil {
				if board.IsMissingTable(err) {
					return fmt.Errorf("%s: %w", board.MissingTableGuidance, err)
				}
				return err
			}

			if ctx.Bool("json") {
				for i := range posts {
					printStdout(posts[i])
				}
				return nil
			}
			fmt.Print(render.List(posts, models.Disconnected))
			return nil
		},
	}
}

func changesCmd() *cli.Command {
	return &cli.Command{
		Name:  "changes",
		Usage: "Print every change to the board as it happens",
		Description: `Subscribes to the board's change feed and prints each change as a
JSON object on a single line. Use a tool like jq to process the output.

Connection status goes to stderr with the other log messages.`,
		Flags: append([]cli.Flag{
			&cli.Int64Flag{
				Name:  "post",
				Usage: "Only follow the post with this id",
			},
		}, clientFlags()...),
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			_, feed := services(cfg)

			scope := models.TableScope()
			if id := ctx.Int64("post"); id > 0 {
				scope = models.PostScope(id)
			}

			sub, err := feed.Subscribe(ctx.Context, scope)
			if err != nil {
				return err
			}
			defer sub.Close()

			for {
				select {
				case <-ctx.Context.Done():
					return nil
				case st, ok := <-sub.Status():
					if !ok {
						return nil
					}
					log.WithFields(log.Fields{"topic": scope.Topic(), "status": st}).Info("Subscription status")
				case evt, ok := <-sub.Events():
					if !ok {
						return nil
					}
					printStdout(evt)
				}
			}
		},
	}
}

func printStdout(v interface{}) {
	data, err := json.Marshal(v)
	if err == nil {
		fmt.Println(string(data))
	}
}

func writeCmd() *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "Write a new post",
		Flags: clientFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			svc, _ := services(cfg)
			notes := board.NewNotifications()
			defer notes.Close()

			form, err := askPost(models.Post{})
			if err != nil {
				return err
			}
			saved, err := board.NewEditor(svc, notes, quietNavigator).Submit(ctx.Context, form)
			fmt.Fprint(os.Stderr, render.Notifications(notes.List()))
			if err != nil {
				return err
			}
			fmt.Print(render.Post(saved, models.Disconnected))
			return nil
		},
	}
}

func editCmd() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit a post",
		ArgsUsage: "<id>",
		Flags:     clientFlags(),
		Action: func(ctx *cli.Context) error {
			id, err := postIdArg(ctx)
			if err != nil {
				return err
			}
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}
			svc, _ := services(cfg)
			notes := board.NewNotifications()
			defer notes.Close()

			editor := board.NewEditEditor(id, svc, notes, quietNavigator)
			current, err := editor.Load(ctx.Context)
			if err != nil {
				fmt.Fprint(os.Stderr, render.Notifications(notes.List()))
				return err
			}

			form, err := askPost(current)
			if err != nil {
				return err
			}
			saved, err := editor.Submit(ctx.Context, form)
			fmt.Fprint(os.Stderr, render.Notifications(notes.List()))
			if err != nil {
				return err
			}
			fmt.Print(render.Post(saved, models.Disconnected))
			return nil
		},
	}
}

func deleteCmd() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a post",
		ArgsUsage: "<id>",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Do not ask for confirmation",
			},
		}, clientFlags()...),
		Action: func(ctx *cli.Context) error {
			id, err := postIdArg(ctx)
			if err != nil {
				return err
			}
			cfg, err := settings(ctx)
			if err != nil {
				return err
			}

			if !ctx.Bool("yes") {
				answer, err := prompt.New().Ask(fmt.Sprintf("Delete post %d?", id)).Choose([]string{"No", "Yes"})
				if err != nil {
					return err
				}
				if answer != "Yes" {
					fmt.Println("Nothing deleted")
					return nil
				}
			}

			svc, feed := services(cfg)
			notes := board.NewNotifications()
			defer notes.Close()

			err = board.NewDetailView(id, svc, feed, notes, quietNavigator).Delete(ctx.Context)
			fmt.Fprint(os.Stderr, render.Notifications(notes.List()))
			return err
		},
	}
}

// askPost prompts for every field, prefilled with current
func askPost(current models.Post) (models.Post, error) {
	title, err := prompt.New().Ask("Title:").Input(current.Title)
	if err != nil {
		return models.Post{}, err
	}
	author, err := prompt.New().Ask("Author:").Input(current.Author)
	if err != nil {
		return models.Post{}, err
	}
	content, err := prompt.New().Ask("Content:").Input(current.Content)
	if err != nil {
		return models.Post{}, err
	}
	return models.Post{Title: title, Author: author, Content: content}, nil
}
