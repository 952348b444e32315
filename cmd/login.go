package cmd

import (
	"errors"
	"fmt"

	"socialfeed/session"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"
)

func loginCmd() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with the configured account",
		Description: `Signs in and stores the session in the local database.

Email and password are prompted for when not given as flags.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Aliases: []string{"e"},
				Usage:   "Account email",
				EnvVars: []string{"SOCIALFEED_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password",
				EnvVars: []string{"SOCIALFEED_PASSWORD"},
			},
		},
		Action: withApp(false, func(ctx *cli.Context, app *feedApp) error {
			email := ctx.String("email")
			if email == "" {
				var err error
				email, err = prompt.New().Ask("Email:").Input("you@example.com")
				if err != nil {
					return err
				}
			}

			password := ctx.String("password")
			if password == "" {
				var err error
				password, err = prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
				if err != nil {
					return err
				}
			}

			if !app.session.Login(ctx.Context, email, password) {
				return errors.New(session.InvalidCredentialsMessage)
			}

			fmt.Printf("Signed in as %s\n", app.session.User().DisplayName())
			return nil
		}),
	}
}

func logoutCmd() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the stored session",
		Action: withApp(false, func(ctx *cli.Context, app *feedApp) error {
			if err := app.session.Logout(ctx.Context); err != nil {
				return fmt.Errorf("could not clear session: %w", err)
			}
			return nil
		}),
	}
}

func whoamiCmd() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
			user := app.session.User()
			role := "member"
			if user.IsModerator {
				role = "moderator"
			}
			fmt.Printf("%s <%s> (%s)\n", user.DisplayName(), user.Email, role)
			return nil
		}),
	}
}
