package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glebk/herb-bot/internal/bot"
	"github.com/glebk/herb-bot/internal/cli"
	"github.com/glebk/herb-bot/internal/clock"
	"github.com/glebk/herb-bot/internal/config"
	"github.com/glebk/herb-bot/internal/repository/sqlite"
	"github.com/glebk/herb-bot/internal/service"
	"github.com/glebk/herb-bot/internal/stats"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "herb-bot",
		Short:         "Herb habit tracker for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(newStatsCmd())
	root.AddCommand(newRecoveryCmd())
	return root
}

// openService loads configuration and wires storage into the service
func openService() (*config.Config, *sqlite.Database, *service.HerbService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc := service.NewHerbService(
		sqlite.NewSessionRepository(db),
		sqlite.NewPreferencesRepository(db),
		clock.System{Location: cfg.Location()},
	)
	return cfg, db, svc, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			log.Printf("Database initialized at: %s", cfg.DatabasePath)

			telegramBot, err := bot.New(svc, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize bot: %w", err)
			}

			// Handle graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Println("Bot started. Press Ctrl+C to stop.")
			if err := telegramBot.Start(ctx); err != nil {
				return fmt.Errorf("bot stopped with error: %w", err)
			}

			log.Println("Shutting down gracefully...")
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var scope, window string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print statistics for a chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := stats.ParseWindow(window)
			if err != nil {
				return err
			}

			_, db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			app, err := svc.Open(scope)
			if err != nil {
				return err
			}
			summary, err := svc.Stats(scope, w)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return cli.Stats(out, cli.NewTheme(out, app.Prefs.DarkMode), summary)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "chat id whose data to read")
	cmd.Flags().StringVar(&window, "window", "week", "time window: day|week|month|all")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newRecoveryCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Print recovery progress for a chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, svc, err := openService()
			if err != nil {
				return err
			}
			defer db.Close()

			app, err := svc.Open(scope)
			if err != nil {
				return err
			}
			report, err := svc.Recovery(scope)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return cli.Recovery(out, cli.NewTheme(out, app.Prefs.DarkMode), report)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "chat id whose data to read")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}
