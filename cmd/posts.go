package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"socialfeed/models"
	"socialfeed/store"
	"socialfeed/view"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

var jsonFlag = &cli.BoolFlag{
	Name:  "json",
	Usage: "Print JSON instead of text",
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printPosts(ctx *cli.Context, posts []models.Post) error {
	if ctx.Bool("json") {
		return printJSON(posts)
	}
	if len(posts) == 0 {
		fmt.Println("No posts")
		return nil
	}
	for _, post := range posts {
		fmt.Printf("#%d  %s  (%d approved comments)\n", post.Id, post.Title, post.ApprovedCommentsCount)
	}
	return nil
}

func postsCmd() *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "Browse and edit posts",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached posts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Only show posts whose title contains the query",
					},
					&cli.StringFlag{
						Name:    "sort",
						Aliases: []string{"s"},
						Value:   string(models.SortLatest),
						Usage:   fmt.Sprintf("Sort order, one of %v", models.SortOptions),
					},
					jsonFlag,
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					option, err := view.ParseSort(ctx.String("sort"))
					if err != nil {
						return err
					}
					if err := app.cache.FetchPosts(ctx.Context, 1, false); err != nil {
						return err
					}
					if updated, err := app.db.UpdatedAt(ctx.Context, store.KeyCacheSnapshot); err == nil && !updated.IsZero() && !ctx.Bool("json") {
						fmt.Printf("Feed cached %s\n", updated.Format(time.RFC1123))
					}
					return printPosts(ctx, view.Feed(app.cache.Posts(), ctx.String("query"), option))
				}),
			},
			{
				Name:  "fetch",
				Usage: "Fetch a page of posts from the remote",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Value: 1,
						Usage: "Page to fetch, page 1 replaces the feed and later pages append",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Refetch page 1 even when posts are cached",
					},
					jsonFlag,
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					if err := app.cache.FetchPosts(ctx.Context, ctx.Int("page"), ctx.Bool("force")); err != nil {
						return err
					}
					return printPosts(ctx, app.cache.Posts())
				}),
			},
			{
				Name:  "search",
				Usage: "Search post titles interactively, one query per line",
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					if err := app.cache.FetchPosts(ctx.Context, 1, false); err != nil {
						return err
					}
					return searchLoop(ctx, app)
				}),
			},
			{
				Name:  "create",
				Usage: "Create a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true},
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Required: true},
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					post, err := app.cache.SavePost(ctx.Context, models.PostPatch{
						Title: lo.ToPtr(ctx.String("title")),
						Body:  lo.ToPtr(ctx.String("body")),
					}, 0)
					if err != nil {
						return err
					}
					fmt.Printf("Created post #%d\n", post.Id)
					return nil
				}),
			},
			{
				Name:      "update",
				Usage:     "Update the title or body of a post",
				ArgsUsage: "<post-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}},
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}},
				},
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					id, err := argId(ctx, 0, "post id")
					if err != nil {
						return err
					}
					var patch models.PostPatch
					if ctx.IsSet("title") {
						patch.Title = lo.ToPtr(ctx.String("title"))
					}
					if ctx.IsSet("body") {
						patch.Body = lo.ToPtr(ctx.String("body"))
					}
					post, err := app.cache.SavePost(ctx.Context, patch, id)
					if err != nil {
						return err
					}
					fmt.Printf("Updated post #%d: %s\n", post.Id, post.Title)
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a post",
				ArgsUsage: "<post-id>",
				Action: withApp(true, func(ctx *cli.Context, app *feedApp) error {
					id, err := argId(ctx, 0, "post id")
					if err != nil {
						return err
					}
					if err := app.cache.DeletePost(ctx.Context, id); err != nil {
						return err
					}
					fmt.Printf("Deleted post #%d\n", id)
					return nil
				}),
			},
		},
	}
}

// searchLoop filters the feed with the last line typed once input pauses
func searchLoop(ctx *cli.Context, app *feedApp) error {
	delay := app.config.Feed.SearchDebounce
	if delay <= 0 {
		delay = view.DefaultSearchDebounce
	}

	results := make(chan string, 1)
	debouncer := view.NewDebouncer(delay, func(query string) {
		select {
		case results <- query:
		default:
		}
	})
	defer debouncer.Stop()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	// Armed at end of input so the last query still gets its results
	var drained <-chan time.Time

	fmt.Println("Type to search, Ctrl-D to quit")
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return err
				}
				lines = nil
				drained = time.After(2 * delay)
				continue
			}
			debouncer.Push(strings.TrimSpace(line))
		case <-drained:
			return nil
		case query := <-results:
			posts := view.Feed(app.cache.Posts(), query, models.SortLatest)
			fmt.Printf("%d posts match %q\n", len(posts), query)
			if err := printPosts(ctx, posts); err != nil {
				return err
			}
		case <-ctx.Context.Done():
			return ctx.Context.Err()
		}
	}
}
