package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_scraper/internal/domain"
)

// WarmService refreshes cached scrape results for a fixed list of targets.
type WarmService struct {
	agg     *Aggregator
	workers int64
}

func NewWarmService(agg *Aggregator, workers int) *WarmService {
	if workers <= 0 {
		workers = 1
	}
	return &WarmService{agg: agg, workers: int64(workers)}
}

// WarmSummary counts targets by how their refresh went. Degraded targets
// returned reviews but were not cached.
type WarmSummary struct {
	OK       int
	Degraded int
	Failed   int
	Reviews  int
}

// Warm drops each target's cached result and scrapes it again, at most
// workers at a time.
func (s *WarmService) Warm(ctx context.Context, targets []domain.ScrapeRequest) WarmSummary {
	sem := semaphore.NewWeighted(s.workers)
	var (
		wg       sync.WaitGroup
		ok       atomic.Int64
		degraded atomic.Int64
		failed   atomic.Int64
		reviews  atomic.Int64
	)

	for i, t := range targets {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			failed.Add(int64(len(targets) - i))
			break
		}

		wg.Add(1)
		go func(t domain.ScrapeRequest) {
			defer wg.Done()
			defer sem.Release(1)

			l := log.With().Str("apple", t.AppleStore).Str("play", t.GooglePlay).Logger()
			if err := s.agg.Invalidate(ctx, t); err != nil {
				l.Warn().Err(err).Msg("cache invalidate failed")
			}
			rep, err := s.agg.Refresh(l.WithContext(ctx), t)
			if err != nil {
				failed.Add(1)
				l.Warn().Err(err).Msg("warm failed")
				return
			}
			reviews.Add(int64(len(rep.Reviews)))
			if !rep.Cached {
				degraded.Add(1)
				l.Warn().Int("reviews", len(rep.Reviews)).Interface("degraded", rep.Degraded).Msg("warm not cached")
				return
			}
			ok.Add(1)
			l.Info().Int("reviews", len(rep.Reviews)).Msg("warm ok")
		}(t)
	}

	wg.Wait()
	return WarmSummary{
		OK:       int(ok.Load()),
		Degraded: int(degraded.Load()),
		Failed:   int(failed.Load()),
		Reviews:  int(reviews.Load()),
	}
}
