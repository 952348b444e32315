package cmd

import (
	"fmt"
	"time"

	"socialfeed/server"
	"socialfeed/view"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed over a local HTTP API",
		Description: `Starts an HTTP server exposing the feed cache as a JSON API
for a browser front end.

Snapshot changes are pushed to connected clients as server-sent events
on /api/events. Prometheus metrics are served on /metrics.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on, overrides the config file",
				EnvVars: []string{"SOCIALFEED_LISTEN"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Usage:   "Comma separated CORS origins, overrides the config file",
				EnvVars: []string{"SOCIALFEED_ALLOW_ORIGINS"},
			},
		},
		Action: withApp(false, func(ctx *cli.Context, app *feedApp) error {
			listen := app.config.Server.Listen
			if ctx.IsSet("listen") {
				listen = ctx.String("listen")
			}
			origins := app.config.Server.AllowOrigins
			if ctx.IsSet("allow-origins") {
				origins = ctx.String("allow-origins")
			}

			bc := server.NewBroadcaster()
			srv := server.Server(&server.ServerConfig{
				Cache:        app.cache,
				Session:      app.session,
				Broadcaster:  bc,
				Overlay:      view.NewOverlay(),
				AllowOrigins: origins,
			})

			errs := make(chan error, 1)
			go func() {
				log.WithFields(log.Fields{"listen": listen}).Info("Starting server")
				errs <- srv.Listen(listen)
			}()

			fmt.Printf("Serving feed on %s\n", listen)

			// Graceful shutdown on interrupt
			select {
			case <-ctx.Context.Done():
			case err := <-errs:
				return fmt.Errorf("server stopped: %w", err)
			}

			fmt.Println("Gracefully shutting down...")
			bc.Shutdown()
			if err := srv.ShutdownWithTimeout(60 * time.Second); err != nil {
				return err
			}
			fmt.Println("Done!")
			return nil
		}),
	}
}
