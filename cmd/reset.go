package cmd

import (
	"fmt"

	"socialfeed/store"

	"github.com/urfave/cli/v2"
)

func resetCmd() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Clear the cached feed",
		Description: `Removes the cached posts and comments from the database, so the
next command starts from the remote again. Moderation decisions are lost.

With --all the stored session is removed as well.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Also sign out",
			},
		},
		Action: withApp(false, func(ctx *cli.Context, app *feedApp) error {
			keys := []string{store.KeyCacheSnapshot}
			if ctx.Bool("all") {
				keys = nil
			}
			removed, err := app.db.Reset(ctx.Context, keys...)
			if err != nil {
				return fmt.Errorf("could not reset database: %w", err)
			}
			fmt.Printf("Removed %d entries\n", removed)
			return nil
		}),
	}
}
