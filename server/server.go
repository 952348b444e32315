package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"socialfeed/cache"
	"socialfeed/models"
	"socialfeed/session"
	"socialfeed/view"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type ServerConfig struct {

	// The feed cache every route reads from and writes to
	Cache *cache.Cache

	// The signed-in identity
	Session *session.Store

	// Broadcast snapshot events to SSE clients
	Broadcaster *Broadcaster

	// Optimistic edits shown while an update is in flight
	Overlay *view.Overlay

	// Comma separated list of origins allowed by CORS
	AllowOrigins string

	// Interval between SSE keep-alive pings
	KeepAlive time.Duration
}

// Returns a fiber.App instance serving the feed API to a local front end
func Server(config *ServerConfig) *fiber.App {
	if config.Broadcaster == nil {
		config.Broadcaster = NewBroadcaster()
	}
	if config.Overlay == nil {
		config.Overlay = view.NewOverlay()
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 5 * time.Second
	}
	config.Cache.Subscribe(config.Broadcaster.BroadcastSnapshot)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			// Compression buffers the SSE stream
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))

	if config.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     config.AllowOrigins,
			AllowHeaders:     "Cache-Control, Authorization, Content-Type",
			AllowCredentials: true,
		}))
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	h := &handlers{
		cache:   config.Cache,
		session: config.Session,
		overlay: config.Overlay,
	}

	api := app.Group("/api")
	api.Post("/login", h.login)
	api.Get("/session", h.currentSession)

	feed := api.Group("", requireSession(config.Session))
	feed.Post("/logout", h.logout)
	feed.Get("/status", h.status)

	feed.Get("/posts", h.listPosts)
	feed.Post("/posts/fetch", h.fetchPosts)
	feed.Post("/posts", h.createPost)
	feed.Put("/posts/:id", h.updatePost)
	feed.Delete("/posts/:id", h.deletePost)

	feed.Get("/posts/:id/comments", h.listComments)
	feed.Post("/posts/:id/comments/fetch", h.fetchComments)
	feed.Post("/posts/:id/comments", h.addComment)
	feed.Post("/posts/:id/comments/:cid/moderate", h.moderateComment)

	feed.Get("/events", sse(config.Cache, config.Broadcaster, config.KeepAlive))

	return app
}

// requireSession answers 401 with the sign-in location unless the request
// carries the current session token
func requireSession(s *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if !s.IsAuthenticated() || token != s.Token() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"redirect": "/login"})
		}
		return c.Next()
	}
}

func sse(feed *cache.Cache, bc *Broadcaster, keepAlive time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := make(chan models.SnapshotEvent, 10)
		bc.AddClient(key, events)
		initial := models.SnapshotEvent{Reason: "init", Snapshot: feed.Snapshot()}

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			alive := time.NewTicker(keepAlive)
			defer alive.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			if err := writeEvent(w, "snapshot", initial); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-alive.C:
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-events:
					if !ok {
						log.Warnf("Snapshot channel closed for client %s", key)
						return
					}
					if err := writeEvent(w, "snapshot", event); err != nil {
						log.Warnf("Failed to send snapshot event to client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	}
}

func writeEvent(w *bufio.Writer, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
