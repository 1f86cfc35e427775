// Package bootstrap wires config into the store clients, cache and aggregator
// shared by the api and warmer binaries.
package bootstrap

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"review_scraper/internal/adapters/appstore"
	"review_scraper/internal/adapters/googleplay"
	redisad "review_scraper/internal/adapters/redis"
	"review_scraper/internal/app"
	"review_scraper/internal/domain"
	"review_scraper/internal/lang"
	"review_scraper/internal/shared"
)

// Aggregator builds the aggregator for cfg. The returned func releases the
// cache connection, if one was opened.
func Aggregator(ctx context.Context, cfg shared.Config) (*app.Aggregator, func()) {
	classifier := lang.New(nil)

	apple := appstore.New(appstore.Options{
		Locale:     cfg.AppleLocale,
		MaxReviews: cfg.MaxReviews,
		MaxRetries: cfg.AppleMaxRetries,
		BaseDelay:  cfg.AppleBaseDelay,
		PageDelay:  cfg.ApplePageDelay,
		Timeout:    cfg.OutboundTimeout,
		Classifier: classifier,
	})

	locales := make([]googleplay.Locale, 0, len(cfg.PlayLocales))
	for _, l := range cfg.PlayLocales {
		locales = append(locales, googleplay.Locale{Lang: l.Lang, Country: l.Country})
	}
	play := googleplay.New(googleplay.Options{
		Locales:    locales,
		MaxReviews: cfg.MaxReviews,
		PageDelay:  cfg.PlayPageDelay,
		Timeout:    cfg.OutboundTimeout,
		Classifier: classifier,
	})

	opts := app.AggregatorOptions{
		TieBreak: domain.PlatformIOS,
		Parallel: cfg.Parallel,
		Ceiling:  cfg.MaxReviews,
	}
	if cfg.TieBreak == "android" {
		opts.TieBreak = domain.PlatformAndroid
	}

	cleanup := func() {}
	if cfg.CacheEnabled() {
		cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := cache.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; running without cache")
			_ = cache.Close()
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("result cache enabled")
			opts.Cache = cache
			opts.CacheTTL = cfg.CacheTTL
			cleanup = func() { _ = cache.Close() }
		}
	}

	return app.NewAggregator(apple, play, opts), cleanup
}
