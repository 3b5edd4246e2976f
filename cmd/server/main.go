package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/levelbot/levelbot/internal/app"
	"github.com/levelbot/levelbot/internal/bot"
	"github.com/levelbot/levelbot/internal/config"
	"github.com/levelbot/levelbot/internal/leaderboard"
	"github.com/levelbot/levelbot/internal/logger"
	"github.com/levelbot/levelbot/internal/voice"
)

const (
	Version = "0.1.0"
	appName = "levelbot"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Chat progression and economy bot",
		Long: `levelbot awards message XP, tracks voice time, keeps a wallet/bank
ledger and serves paginated leaderboards.

Chat events arrive over Kafka; commands are exposed over HTTP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})
	cmd.AddCommand(leaderboardCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	runErr := a.Run(ctx)
	log.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeApp(closeCtx, a, log)
	return runErr
}

// closeApp releases a and logs anything that could not be flushed or closed.
func closeApp(ctx context.Context, a *app.App, log *logrus.Logger) error {
	err := a.Close(ctx)
	if err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
	return err
}

func leaderboardCmd(configPath *string) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:       "leaderboard [messages|voice]",
		Short:     "Print one leaderboard page from storage",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"messages", "voice"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := leaderboard.Messages
			if len(args) == 1 {
				k, err := leaderboard.ParseKind(args[0])
				if err != nil {
					return err
				}
				kind = k
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Kafka.Brokers = nil
			log := logger.New("warn", "text")

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a, log)

			view, err := a.Bot.Leaderboard(ctx, bot.Invocation{UserID: appName, ChannelID: cfg.Bot.ChannelID}, kind, page)
			if err != nil {
				return err
			}
			printPage(cmd, view.Page)
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	return cmd
}

func printPage(cmd *cobra.Command, p leaderboard.Page) {
	out := cmd.OutOrStdout()
	if p.Empty {
		fmt.Fprintln(out, "No entries yet.")
		return
	}
	for _, row := range p.Rows {
		switch p.Kind {
		case leaderboard.Voice:
			fmt.Fprintf(out, "%-4s %-24s %s\n", row.Rank, row.Identity.Name, voice.FormatDuration(row.VoiceSeconds))
		default:
			fmt.Fprintf(out, "%-4s %-24s level %d (%d xp)\n", row.Rank, row.Identity.Name, row.Level, row.XP)
		}
	}
	fmt.Fprintf(out, "Page %d/%d\n", p.Page, p.TotalPages)
}
