package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"review_scraper/internal/adapters/observability"
	"review_scraper/internal/app"
	"review_scraper/internal/bootstrap"
	"review_scraper/internal/domain"
	"review_scraper/internal/shared"
)

func main() {
	_ = godotenv.Load()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)
	zerolog.DefaultContextLogger = &log.Logger

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if !cfg.CacheEnabled() {
		log.Fatal().Msg("warmer needs REDIS_ADDR and CACHE_TTL_SECONDS > 0")
	}
	if len(cfg.WarmTargets) == 0 {
		log.Info().Msg("no WARM_TARGETS; nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("targets", len(cfg.WarmTargets)).
		Int("workers", cfg.WarmWorkers).
		Msg("warmer starting")

	agg, closeCache := bootstrap.Aggregator(ctx, cfg)
	defer closeCache()

	targets := make([]domain.ScrapeRequest, 0, len(cfg.WarmTargets))
	for _, t := range cfg.WarmTargets {
		targets = append(targets, domain.ScrapeRequest{AppleStore: t.AppleStore, GooglePlay: t.GooglePlay})
	}

	sum := app.NewWarmService(agg, cfg.WarmWorkers).Warm(ctx, targets)
	log.Info().Int("ok", sum.OK).Int("degraded", sum.Degraded).Int("failed", sum.Failed).
		Int("reviews", sum.Reviews).Msg("warming completed")
	if sum.Failed > 0 || sum.Degraded > 0 {
		stop()
		closeCache()
		os.Exit(1)
	}
}
