package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"roast-machine/internal/app"
	"roast-machine/internal/config"
	"roast-machine/internal/database"
	"roast-machine/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		switch {
		case errors.Is(err, config.ErrEmptyModelURL):
			fmt.Fprintln(os.Stderr, "Error: MODEL_BASE_URL environment variable is required")
		case errors.Is(err, config.ErrEmptyBotToken):
			fmt.Fprintln(os.Stderr, "Error: BOT_TOKEN environment variable is required when BOT_ENABLED=true")
		case errors.Is(err, config.ErrEmptyDBPassword):
			fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD environment variable is required when DB_ENABLED=true")
		default:
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if cfg.App.IsDevelopment() {
		out = logger.Console(os.Stdout)
	}
	logger.Init(cfg.App.LogLevel, out)
	logger.Info("Starting roast-machine",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
	)

	if err := run(cfg); err != nil {
		logger.Error("Server stopped with error", logger.Err(err))
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.String("host", dbErr.Host),
				logger.Int("port", dbErr.Port),
			)
		}
		return err
	}
	defer a.Close()

	srv, err := a.Web()
	if err != nil {
		return err
	}

	tgBot, err := a.Bot()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if a.ArchiveEnabled() {
		g.Go(func() error {
			if err := a.RunArchive(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("joke archive: %w", err)
			}
			return nil
		})
	}

	if tgBot != nil {
		g.Go(func() error {
			return tgBot.Run(ctx)
		})
	}

	return g.Wait()
}
