package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/soukbot/tg-product-scraper/internal/app"
	"github.com/soukbot/tg-product-scraper/internal/config"
	"github.com/soukbot/tg-product-scraper/internal/store"
)

const modeReplay = "replay"

func main() {
	mode := flag.String("mode", "", "Run mode (history, live, hybrid, replay); overrides SCRAPER_MODE")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *mode != "" && *mode != modeReplay {
		cfg.Mode = *mode
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid config: %v", err)
		}
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open state store")
	}
	defer st.Close()

	application := app.New(cfg, st, &logger)

	go func() {
		if err := application.StartHealthServer(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := run(ctx, application, *mode); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")

			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func run(ctx context.Context, application *app.App, mode string) error {
	if mode == modeReplay {
		return application.RunReplay(ctx)
	}

	return application.RunScraper(ctx)
}
