package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/scribe-archive/scribe/internal/config"
	"github.com/scribe-archive/scribe/internal/ingest"
	"github.com/scribe-archive/scribe/internal/listen"
	"github.com/scribe-archive/scribe/internal/ratelimit"
	"github.com/scribe-archive/scribe/internal/retrieve"
	"github.com/scribe-archive/scribe/internal/source"
	"github.com/scribe-archive/scribe/internal/store"
)

var version = "0.1.0-dev"

func main() {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "scribe",
		Short: "Scribe - archive Discord guilds into a searchable local corpus",
	}

	rootCmd.AddCommand(
		versionCmd(),
		pathsCmd(),
		importCmd(),
		watchCmd(),
		listenCmd(),
		searchCmd(),
		askCmd(),
		contextCmd(),
		threadCmd(),
		repliesCmd(),
		recentCmd(),
		userCmd(),
		statsCmd(),
		channelsCmd(),
		guildsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(map[string]interface{}{
				"version": version,
			})
		},
	}
}

func pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print scribe application paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return printJSON(map[string]interface{}{
				"app_dir":     cfg.AppDir,
				"db_path":     cfg.DBPath,
				"config_path": cfg.ConfigPath,
			})
		},
	}
}

func importCmd() *cobra.Command {
	var guilds, channels []string
	var concurrency int
	var noThreads bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Backfill guilds, channels, threads, and pins into the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if len(guilds) > 0 {
				cfg.Guilds = guilds
			}
			if len(channels) > 0 {
				cfg.Channels = channels
			}
			if concurrency > 0 {
				cfg.Concurrency = concurrency
			}
			if noThreads {
				cfg.IncludeThreads = false
			}

			res, err := runImport(cfg)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringSliceVar(&guilds, "guild", nil, "only import these guilds (id or name, repeatable)")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "only import these channels (id or name, repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "channel backfill worker count")
	cmd.Flags().BoolVar(&noThreads, "no-threads", false, "skip thread discovery and backfill")
	return cmd
}

func watchCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run imports on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			runOnce := func() {
				res, err := runImport(cfg)
				if err != nil {
					log.Printf("import failed: %v", err)
					return
				}
				log.Printf("import %s: %d guilds, %d channels, %d messages",
					res.RunID, res.Guilds, res.Channels, res.Messages)
			}

			c := cron.New()
			if _, err := c.AddFunc(schedule, runOnce); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}
			c.Start()
			defer c.Stop()

			log.Printf("scheduled imports (%s); running initial import", schedule)
			runOnce()

			waitForInterrupt()
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "@hourly", "cron schedule for re-imports")
	return cmd
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Apply live gateway events to the corpus until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			src, err := source.Connect(cfg.Token, ratelimit.New(cfg.RateInterval))
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			l := listen.New(src.Session(), st)
			if err := l.Start(); err != nil {
				return err
			}
			defer l.Close()

			waitForInterrupt()
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var channel, guild, author string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				results, err := e.Search(joinArgs(args), store.Filters{
					Channel: channel,
					Guild:   guild,
					Author:  author,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				return printJSON(results)
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "restrict to a channel (id or name)")
	cmd.Flags().StringVar(&guild, "guild", "", "restrict to a guild (id or name)")
	cmd.Flags().StringVar(&author, "author", "", "restrict to an author (id or name)")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum results")
	return cmd
}

func askCmd() *cobra.Command {
	var channel, guild string
	var topK int

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Search and assemble surrounding conversations for each hit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				ans, err := e.Ask(joinArgs(args), store.Filters{Channel: channel, Guild: guild}, topK)
				if err != nil {
					return err
				}
				return printJSON(ans)
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "restrict to a channel (id or name)")
	cmd.Flags().StringVar(&guild, "guild", "", "restrict to a guild (id or name)")
	cmd.Flags().IntVar(&topK, "topk", 8, "search hits to expand")
	return cmd
}

func contextCmd() *cobra.Command {
	var window int

	cmd := &cobra.Command{
		Use:   "context <channel> <message-id>",
		Short: "Show messages surrounding a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				msgs, err := e.Context(args[0], args[1], window)
				if err != nil {
					return err
				}
				return printJSON(msgs)
			})
		},
	}

	cmd.Flags().IntVar(&window, "window", 10, "window size")
	return cmd
}

func threadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <thread-id>",
		Short: "Show a full thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				msgs, err := e.Thread(args[0])
				if err != nil {
					return err
				}
				return printJSON(msgs)
			})
		},
	}
}

func repliesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replies <message-id>",
		Short: "Show replies to a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				msgs, err := e.Replies(args[0])
				if err != nil {
					return err
				}
				return printJSON(msgs)
			})
		},
	}
}

func recentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent <channel>",
		Short: "Show the latest messages in a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				msgs, err := e.Recent(args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(msgs)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum messages")
	return cmd
}

func userCmd() *cobra.Command {
	var channel, guild string
	var limit int

	cmd := &cobra.Command{
		Use:   "user <user>",
		Short: "Show messages authored by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				msgs, err := e.MessagesByUser(args[0], store.Filters{
					Channel: channel,
					Guild:   guild,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				return printJSON(msgs)
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "restrict to a channel (id or name)")
	cmd.Flags().StringVar(&guild, "guild", "", "restrict to a guild (id or name)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show corpus counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				stats, err := e.Stats()
				if err != nil {
					return err
				}
				return printJSON(stats)
			})
		},
	}
}

func channelsCmd() *cobra.Command {
	var guild string

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List archived channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				channels, err := e.ListChannels(guild)
				if err != nil {
					return err
				}
				return printJSON(channels)
			})
		},
	}

	cmd.Flags().StringVar(&guild, "guild", "", "restrict to a guild (id or name)")
	return cmd
}

func guildsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guilds",
		Short: "List archived guilds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *retrieve.Engine) error {
				guilds, err := e.ListGuilds()
				if err != nil {
					return err
				}
				return printJSON(guilds)
			})
		},
	}
}

// runImport wires the limiter, adapter, store, and pipeline for one run.
func runImport(cfg *config.Config) (*ingest.Result, error) {
	src, err := source.Connect(cfg.Token, ratelimit.New(cfg.RateInterval))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	importer := ingest.New(src, st, ingest.Options{
		Concurrency:    cfg.Concurrency,
		PageSize:       cfg.PageSize,
		IncludeThreads: cfg.IncludeThreads,
		Guilds:         cfg.Guilds,
		Channels:       cfg.Channels,
	})
	return importer.Run()
}

// withEngine opens the store read path for one query command.
func withEngine(fn func(e *retrieve.Engine) error) error {
	cfg := config.Load()
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(retrieve.New(st))
}

func waitForInterrupt() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
