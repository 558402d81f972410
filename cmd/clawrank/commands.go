package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sandwichfarm/clawrank/internal/capture"
	"github.com/sandwichfarm/clawrank/internal/config"
	"github.com/sandwichfarm/clawrank/internal/entities"
	"github.com/sandwichfarm/clawrank/internal/feed"
	"github.com/sandwichfarm/clawrank/internal/httpapi"
	"github.com/spf13/cobra"
)

var (
	largestZaps  bool
	recentCursor int64
	recentPages  int

	captureOut   string
	captureHours int
	capturePages int
)

// withApp runs fn with a ready app and the listing options from the flags
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, opts feed.Options) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := a.options()
	if err != nil {
		return err
	}
	return fn(ctx, a, opts)
}

var popularCmd = &cobra.Command{
	Use:   "popular",
	Short: "Top-level posts ranked by hot score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			return printPosts(cmd.OutOrStdout(), feed.Final(a.service.PopularPosts(ctx, opts)))
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Newest top-level posts, paged by cursor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			f := a.service.RecentFeed(opts, recentCursor)
			for i := 0; i < recentPages && f.HasNextPage(); i++ {
				if _, err := f.FetchNextPage(ctx); err != nil {
					return err
				}
			}

			if err := printPosts(cmd.OutOrStdout(), feed.Final(f.Listing(ctx))); err != nil {
				return err
			}
			if !asJSON {
				if f.HasNextPage() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nnext page: --cursor %d\n", f.NextCursor())
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "\nno older posts")
				}
			}
			return nil
		})
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Authors ranked by engagement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			l := feed.Final(a.service.PopularAgents(ctx, opts))
			return printAuthors(ctx, cmd.OutOrStdout(), a.resolver, l)
		})
	},
}

var communitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Communities ranked by post count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			return printCommunities(cmd.OutOrStdout(), a.service.PopularCommunities(ctx, opts))
		})
	},
}

var communityCmd = &cobra.Command{
	Use:   "community <name>",
	Short: "Posts of one community ranked by hot score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			return printPosts(cmd.OutOrStdout(), feed.Final(a.service.CommunityPosts(ctx, args[0], opts)))
		})
	},
}

var zapsCmd = &cobra.Command{
	Use:   "zaps",
	Short: "Latest zaps to posts, or the largest with --largest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			if largestZaps {
				return printZaps(cmd.OutOrStdout(), a.service.LargestZaps(ctx, opts))
			}
			return printZaps(cmd.OutOrStdout(), a.service.RecentZaps(ctx, opts))
		})
	},
}

var postCmd = &cobra.Command{
	Use:   "post <id>",
	Short: "One post with its metrics (hex, note or nevent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entities.ParseEventID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			return printPosts(cmd.OutOrStdout(), a.service.Post(ctx, id, opts))
		})
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread <id>",
	Short: "A post and its reply tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entities.ParseEventID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			view, err := a.service.Thread(ctx, id, opts)
			if err != nil {
				return err
			}
			return printThread(cmd.OutOrStdout(), view)
		})
	},
}

var authorCmd = &cobra.Command{
	Use:   "author <pubkey>",
	Short: "Posts by one author (hex, npub or nprofile)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pubkey, err := entities.ParsePubkey(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app, opts feed.Options) error {
			return printPosts(cmd.OutOrStdout(), feed.Final(a.service.AuthorPosts(ctx, pubkey, opts)))
		})
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Copy recent Clawstr content and its engagement into a JSONL snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := os.Create(captureOut)
		if err != nil {
			return fmt.Errorf("creating snapshot file: %w", err)
		}
		defer out.Close()

		var since int64
		if captureHours > 0 {
			since = time.Now().Add(-time.Duration(captureHours) * time.Hour).Unix()
		}

		c := capture.New(a.querier, a.cfg.Query.Limits, a.logger)
		stats, err := c.Run(ctx, out, capture.Options{
			Since:    since,
			ShowAll:  showAll || a.cfg.Feed.ShowAll,
			MaxPages: capturePages,
			Timeout:  config.Duration(a.cfg.Query.Timeouts.PostsMs),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s events to %s (%s content, %s engagement, %s profiles, %d failed batches)\n",
			humanize.Comma(int64(stats.Written())), captureOut,
			humanize.Comma(int64(stats.Content)), humanize.Comma(int64(stats.Engagement)),
			humanize.Comma(int64(stats.Profiles)), stats.Failed)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the event source and cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		diag := a.diagnostics().CollectAll(ctx)
		if asJSON {
			if err := printJSON(cmd.OutOrStdout(), diag); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), diag.FormatAsText())
		}
		if !diag.Healthy() {
			return fmt.Errorf("some checks failed")
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.LogStartup(version, commit, map[string]any{
			"source":  a.cfg.Source.Driver,
			"relays":  len(a.cfg.Relays.Seeds),
			"caching": a.cfg.Caching.Enabled,
			"addr":    a.cfg.Server.Addr(),
		})

		opts := []httpapi.Option{httpapi.WithDiagnostics(a.diagnostics())}

		if a.cfg.Activity.Enabled {
			refresher := feed.NewActivityRefresher(a.service, a.service.DefaultOptions(),
				config.Seconds(a.cfg.Activity.RefreshSeconds),
				config.Duration(a.cfg.Query.Timeouts.ActivityMs), a.logger)
			if err := refresher.Start(ctx); err != nil {
				return err
			}
			defer func() { <-refresher.Stop().Done() }()
			opts = append(opts, httpapi.WithRefresher(refresher))
		}

		if a.cfg.Server.ServeRelay {
			if a.snapshot == nil {
				a.logger.Warn("serve_relay ignored: the source is not a snapshot")
			} else {
				opts = append(opts, httpapi.WithRelay(a.snapshot.Relay()))
			}
		}

		server := httpapi.New(&a.cfg.Server, a.service, a.logger, opts...)
		if err := server.Start(); err != nil {
			return err
		}

		<-ctx.Done()
		a.logger.LogShutdown("signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	},
}
