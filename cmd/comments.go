package cmd

import (
	"errors"
	"fmt"

	"socialfeed/models"
	"socialfeed/view"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func commentsCmd() *cli.Command {
	return &cli.Command{
		Name:  "comments",
		Usage: "Read, add and moderate comments",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the visible comments of a post",
				ArgsUsage: "<post-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Include rejected comments"},
					jsonFlag,
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					postId, err := argId(ctx, 0, "post id")
					if err != nil {
						return err
					}
					if err := app.cache.FetchComments(ctx.Context, postId, false); err != nil {
						return err
					}
					comments, _ := app.cache.Comments(postId)
					if !ctx.Bool("all") {
						comments = view.VisibleComments(comments)
					}
					return printComments(ctx, comments)
				}),
			},
			{
				Name:      "fetch",
				Usage:     "Fetch the comments of a post from the remote",
				ArgsUsage: "<post-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Refetch even when cached, every comment returns to pending",
					},
					jsonFlag,
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					postId, err := argId(ctx, 0, "post id")
					if err != nil {
						return err
					}
					if err := app.cache.FetchComments(ctx.Context, postId, ctx.Bool("force")); err != nil {
						return err
					}
					comments, _ := app.cache.Comments(postId)
					return printComments(ctx, view.VisibleComments(comments))
				}),
			},
			{
				Name:      "add",
				Usage:     "Comment on a post as the signed-in user",
				ArgsUsage: "<post-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Required: true},
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					postId, err := argId(ctx, 0, "post id")
					if err != nil {
						return err
					}
					user := app.session.User()
					comment, err := app.cache.MakeComment(ctx.Context, models.Comment{
						PostId: postId,
						Name:   user.DisplayName(),
						Email:  user.Email,
						Body:   ctx.String("body"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Added comment #%d, awaiting moderation\n", comment.Id)
					return nil
				}),
			},
			moderateCmd("approve", true),
			moderateCmd("reject", false),
		},
	}
}

func moderateCmd(name string, approve bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     fmt.Sprintf("%s a comment (moderators only)", lo.Capitalize(name)),
		ArgsUsage: "<post-id> <comment-id>",
		Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
			postId, err := argId(ctx, 0, "post id")
			if err != nil {
				return err
			}
			commentId, err := argId(ctx, 1, "comment id")
			if err != nil {
				return err
			}

			comments, _ := app.cache.Comments(postId)
			comment, found := lo.Find(comments, func(comment models.Comment) bool { return comment.Id == commentId })
			if !found {
				return fmt.Errorf("comment #%d not found on post #%d, fetch comments first", commentId, postId)
			}
			if !app.session.User().CanModerate(comment) {
				return errors.New("you are not allowed to moderate this comment")
			}

			if !app.cache.ModerateComment(ctx.Context, postId, commentId, approve) {
				fmt.Printf("Comment #%d is already %s\n", commentId, comment.Status)
				return nil
			}
			post, _ := app.cache.Post(postId)
			fmt.Printf("Comment #%d is now %s, post #%d has %d approved comments\n",
				commentId, lo.Ternary(approve, models.StatusApproved, models.StatusRejected), postId, post.ApprovedCommentsCount)
			return nil
		}),
	}
}

func printComments(ctx *cli.Context, comments []models.Comment) error {
	if ctx.Bool("json") {
		return printJSON(comments)
	}
	if len(comments) == 0 {
		fmt.Println("No comments")
		return nil
	}
	for _, comment := range comments {
		fmt.Printf("#%d  [%s]  %s <%s>: %s\n", comment.Id, comment.Status, comment.Name, comment.Email, comment.Body)
	}
	return nil
}
