package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"socialfeed/api"
	"socialfeed/cache"
	"socialfeed/config"
	"socialfeed/db"
	"socialfeed/models"
	"socialfeed/session"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var errNotSignedIn = errors.New("not signed in, run `socialfeed login` first")

// feedApp wires configuration, storage, session, remote client and cache
type feedApp struct {
	config  *config.TomlConfig
	db      *db.DB
	session *session.Store
	client  *api.Client
	cache   *cache.Cache
}

func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"), !ctx.IsSet("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("database") {
		cfg.Database = ctx.String("database")
	}
	if ctx.IsSet("base-url") {
		cfg.Remote.BaseURL = ctx.String("base-url")
	}
	return cfg, nil
}

func openApp(ctx *cli.Context) (*feedApp, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("could not open database %s: %w", cfg.Database, err)
	}

	account, err := session.NewAccount(models.User{
		FirstName:   cfg.Account.FirstName,
		LastName:    cfg.Account.LastName,
		Email:       cfg.Account.Email,
		IsModerator: cfg.Account.IsModerator,
	}, cfg.Account.Password, cfg.Account.PasswordHash, 0)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("could not prepare account: %w", err)
	}

	sess := session.New(database, account,
		session.WithLoginDelay(cfg.Account.LoginDelay),
		session.WithSignOut(printSignInHint),
	)
	if err := sess.Open(ctx.Context); err != nil {
		database.Close()
		return nil, fmt.Errorf("could not restore session: %w", err)
	}

	client := api.NewClient(api.Config{
		BaseURL:    cfg.Remote.BaseURL,
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
		Token:      sess.Token,
	})

	feed := cache.New(client, database,
		cache.WithPageSize(cfg.Feed.PageSize),
		cache.WithOwnerUserId(cfg.Feed.OwnerUserId),
	)
	if err := feed.Load(ctx.Context); err != nil {
		database.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"database": cfg.Database,
		"remote":   cfg.Remote.BaseURL,
	}).Debug("Opened feed")

	return &feedApp{
		config:  cfg,
		db:      database,
		session: sess,
		client:  client,
		cache:   feed,
	}, nil
}

func printSignInHint() {
	fmt.Println("Signed out, run `socialfeed login` to sign in again")
}

func (a *feedApp) Close() {
	if err := a.db.Close(); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error closing database")
	}
}

// withApp opens the app for one command. Feed commands pass requireSession.
func withApp(requireSession bool, action func(ctx *cli.Context, app *feedApp) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if requireSession && !app.session.IsAuthenticated() {
			return errNotSignedIn
		}
		return action(ctx, app)
	}
}

func argId(ctx *cli.Context, index int, name string) (int64, error) {
	value := ctx.Args().Get(index)
	if value == "" {
		return 0, fmt.Errorf("missing %s argument", name)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return id, nil
}
