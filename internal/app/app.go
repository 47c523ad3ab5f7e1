// Package app wires the application together and exposes its run modes:
//
//   - Scrape mode: backfill channel history, tail for new messages, or both
//   - Replay mode: re-attempt delivery of everything in the failure queue
//
// The health and metrics server runs alongside either mode.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/soukbot/tg-product-scraper/internal/backend"
	"github.com/soukbot/tg-product-scraper/internal/config"
	"github.com/soukbot/tg-product-scraper/internal/dedup"
	"github.com/soukbot/tg-product-scraper/internal/extract"
	"github.com/soukbot/tg-product-scraper/internal/llm"
	"github.com/soukbot/tg-product-scraper/internal/observability"
	"github.com/soukbot/tg-product-scraper/internal/scraper"
	"github.com/soukbot/tg-product-scraper/internal/store"
)

// ErrNoBackend indicates replay was requested without a backend URL.
var ErrNoBackend = errors.New("replay requires BACKEND_URL")

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg    *config.Config
	store  *store.Store
	logger *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, st *store.Store, logger *zerolog.Logger) *App {
	return &App{
		cfg:    cfg,
		store:  st,
		logger: logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.store, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunScraper runs the configured scrape mode.
func (a *App) RunScraper(ctx context.Context) error {
	a.logger.Info().Str("mode", a.cfg.Mode).Int("channels", len(a.cfg.Channels)).Msg("starting scraper")

	index, err := dedup.NewIndex(ctx, a.store)
	if err != nil {
		return fmt.Errorf("dedup index init: %w", err)
	}

	extractor := extract.NewCoordinator(a.newAIClient(), a.logger)
	client := backend.NewClient(a.cfg, a.logger)
	queue := backend.NewQueue(a.cfg.FailedFile)

	s := scraper.New(a.cfg, a.store, index, extractor, client, queue, a.logger)

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("scraper run: %w", err)
	}

	return nil
}

// RunReplay replays the failure queue against the backend and exits.
func (a *App) RunReplay(ctx context.Context) error {
	client := backend.NewClient(a.cfg, a.logger)
	if !client.Enabled() {
		return ErrNoBackend
	}

	queue := backend.NewQueue(a.cfg.FailedFile)

	res, err := backend.Replay(ctx, queue, client, a.logger)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	a.logger.Info().Int("delivered", res.Delivered).Int("remaining", res.Remaining).Msg("replay finished")

	return nil
}

// newAIClient builds the AI extraction client, nil when not configured so
// the coordinator runs rule-based only.
func (a *App) newAIClient() llm.Client {
	if !a.cfg.AIConfigured() {
		a.logger.Warn().Msg("AI extraction disabled, using rule-based extraction only")

		return nil
	}

	return llm.NewOpenAI(a.cfg, a.logger)
}
