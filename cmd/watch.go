package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"socialfeed/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll the first page of posts and print feed changes",
		Description: `Refreshes the first page of the feed on an interval and prints every
resulting snapshot change to stdout.

Returns each change as a JSON object on a single line. Use a tool like jq to
process the output.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   time.Minute,
				Usage:   "Time between refreshes",
			},
		},
		Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			unsubscribe := app.cache.Subscribe(func(event models.SnapshotEvent) {
				printStdout(event)
			})
			defer unsubscribe()

			ticker := time.NewTicker(ctx.Duration("interval"))
			defer ticker.Stop()

			for {
				if err := app.cache.FetchPosts(ctx.Context, 1, true); err != nil {
					log.WithFields(log.Fields{"error": err}).Warn("Refresh failed, retrying on next tick")
				}
				select {
				case <-ctx.Context.Done():
					fmt.Fprintln(os.Stderr, "Stopping watch")
					return nil
				case <-ticker.C:
				}
			}
		}),
	}
}

func printStdout(event models.SnapshotEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error marshalling event")
		return
	}
	fmt.Println(string(data))
}
