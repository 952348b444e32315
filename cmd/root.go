package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "socialfeed",
		Usage: "A social feed client with comment moderation",
		Description: `A client for a paginated posts and comments REST API.

		Sign in with the configured account, browse and search the feed,
		create, edit and delete posts, and moderate comments. Feed state is
		cached in a local SQLite database and can be served to a browser
		front end over a local HTTP API.

		Flags can generally be set via environment variables, e.g.:

		--database => SOCIALFEED_DATABASE=feed.db
		--listen => SOCIALFEED_LISTEN=:8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "socialfeed.toml",
				Usage:   "Path to configuration file",
				EnvVars: []string{"SOCIALFEED_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "SQLite database file, overrides the config file",
				EnvVars: []string{"SOCIALFEED_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Base URL of the posts API, overrides the config file",
				EnvVars: []string{"SOCIALFEED_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"SOCIALFEED_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			log.SetOutput(os.Stderr)
			return nil
		},
		Commands: []*cli.Command{
			loginCmd(),
			logoutCmd(),
			whoamiCmd(),
			postsCmd(),
			commentsCmd(),
			watchCmd(),
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			resetCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the CLI with the process arguments. Interrupts cancel the
// command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := RootApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}
