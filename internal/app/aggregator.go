package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"review_scraper/internal/adapters/observability"
	"review_scraper/internal/domain"
)

var tracer = observability.Tracer("review_scraper/app")

type AggregatorOptions struct {
	Cache    domain.Cache // nil disables caching
	CacheTTL time.Duration
	TieBreak domain.Platform // platform listed first among same-date reviews
	Parallel bool
	Ceiling  int // per-platform cap, part of the cache key
}

// Aggregator merges the reviews of one Apple and one Play storefront.
type Aggregator struct {
	apple domain.StoreClient
	play  domain.StoreClient
	opts  AggregatorOptions
}

func NewAggregator(apple, play domain.StoreClient, o AggregatorOptions) *Aggregator {
	if o.TieBreak == "" {
		o.TieBreak = domain.PlatformIOS
	}
	return &Aggregator{apple: apple, play: play, opts: o}
}

// Aggregate fetches whichever storefronts req names and returns their reviews
// as one newest-first list. A failing platform contributes whatever it
// collected, and so does one cut short by the ctx deadline. Only cancellation
// of ctx is returned as an error.
func (a *Aggregator) Aggregate(ctx context.Context, req domain.ScrapeRequest) ([]domain.Review, error) {
	rep, err := a.Refresh(ctx, req)
	return rep.Reviews, err
}

// Report describes one aggregation.
type Report struct {
	Reviews  []domain.Review
	Degraded []domain.Platform // platforms whose outcome was not OK
	Cached   bool              // served from or stored into the cache
}

// Refresh is Aggregate with the per-platform detail the warmer needs.
func (a *Aggregator) Refresh(ctx context.Context, req domain.ScrapeRequest) (Report, error) {
	if req.AppleStore == "" && req.GooglePlay == "" {
		return Report{Reviews: []domain.Review{}}, nil
	}
	ctx, span := tracer.Start(ctx, "app.Aggregate")
	defer span.End()

	key := CacheKey(req, a.opts.Ceiling)
	if a.cacheEnabled() {
		var cached []domain.Review
		if ok, err := a.opts.Cache.Get(ctx, key, &cached); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("cache get failed")
		} else if ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return Report{Reviews: cached, Cached: true}, nil
		}
	}

	results := a.fetch(ctx, req)
	if errors.Is(ctx.Err(), context.Canceled) {
		return Report{}, ctx.Err()
	}

	rep := Report{Reviews: make([]domain.Review, 0)}
	for _, r := range a.ordered(results) {
		observability.ObserveScrape(string(r.Platform), string(r.Outcome), len(r.Reviews))
		if r.Degraded() {
			rep.Degraded = append(rep.Degraded, r.Platform)
			log.Ctx(ctx).Warn().Err(r.Err).Str("platform", string(r.Platform)).
				Str("outcome", string(r.Outcome)).Int("status", r.Status).
				Int("kept", len(r.Reviews)).Msg("platform degraded")
		}
		rep.Reviews = append(rep.Reviews, r.Reviews...)
	}
	domain.SortByDateDesc(rep.Reviews)
	span.SetAttributes(attribute.Int("reviews", len(rep.Reviews)))

	if len(rep.Degraded) == 0 && a.cacheEnabled() {
		// skip oversized payloads
		if b, _ := json.Marshal(rep.Reviews); len(b) < 4_000_000 {
			// the request deadline may be spent; the write gets its own
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := a.opts.Cache.Set(sctx, key, rep.Reviews, int(a.opts.CacheTTL.Seconds())); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("cache set failed")
			} else {
				rep.Cached = true
			}
			cancel()
		}
	}
	return rep, nil
}

// Invalidate drops the cached result for req, if any.
func (a *Aggregator) Invalidate(ctx context.Context, req domain.ScrapeRequest) error {
	if !a.cacheEnabled() {
		return nil
	}
	return a.opts.Cache.Del(ctx, CacheKey(req, a.opts.Ceiling))
}

func (a *Aggregator) cacheEnabled() bool {
	return a.opts.Cache != nil && a.opts.CacheTTL > 0
}

func (a *Aggregator) fetch(ctx context.Context, req domain.ScrapeRequest) []domain.FetchResult {
	type job struct {
		client domain.StoreClient
		url    string
	}
	var jobs []job
	if req.AppleStore != "" {
		jobs = append(jobs, job{a.apple, req.AppleStore})
	}
	if req.GooglePlay != "" {
		jobs = append(jobs, job{a.play, req.GooglePlay})
	}

	results := make([]domain.FetchResult, len(jobs))
	if !a.opts.Parallel {
		for i, j := range jobs {
			results[i] = j.client.FetchAll(ctx, j.url)
		}
		return results
	}
	var g errgroup.Group
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = j.client.FetchAll(ctx, j.url)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ordered puts the tie-break platform first so the stable sort keeps it ahead
// on equal dates.
func (a *Aggregator) ordered(rs []domain.FetchResult) []domain.FetchResult {
	out := make([]domain.FetchResult, 0, len(rs))
	for _, r := range rs {
		if r.Platform == a.opts.TieBreak {
			out = append(out, r)
		}
	}
	for _, r := range rs {
		if r.Platform != a.opts.TieBreak {
			out = append(out, r)
		}
	}
	return out
}

// CacheKey is reviews:<sha1 of apple|play|ceiling>.
func CacheKey(req domain.ScrapeRequest, ceiling int) string {
	sum := sha1.Sum([]byte(req.AppleStore + "|" + req.GooglePlay + "|" + strconv.Itoa(ceiling)))
	return "reviews:" + hex.EncodeToString(sum[:])
}
