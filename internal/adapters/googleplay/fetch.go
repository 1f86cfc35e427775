package googleplay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"review_scraper/internal/adapters/observability"
	"review_scraper/internal/datefmt"
	"review_scraper/internal/domain"
)

var tracer = observability.Tracer("review_scraper/googleplay")

// FetchAll reads every configured locale for the app behind rawURL, merges
// them without duplicates and returns up to MaxReviews newest first.
func (c *Client) FetchAll(ctx context.Context, rawURL string) (res domain.FetchResult) {
	ctx, span := tracer.Start(ctx, "googleplay.FetchAll")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failed(domain.PlatformAndroid, domain.OutcomeFailed, fmt.Errorf("googleplay: panic: %v", r))
		}
		span.SetAttributes(
			attribute.String("outcome", string(res.Outcome)),
			attribute.Int("reviews", len(res.Reviews)),
		)
	}()

	appID, err := ParseURL(rawURL)
	if err != nil {
		return domain.Failed(domain.PlatformAndroid, domain.OutcomeInvalidURL, err)
	}
	span.SetAttributes(attribute.String("app_id", appID))

	var items []Item
	for _, loc := range c.opts.Locales {
		got, status, err := c.FetchLocale(ctx, appID, loc, c.opts.MaxReviews)
		items = append(items, got...)
		switch {
		case err == nil:
			continue
		case ctx.Err() != nil:
			return c.finish(items, domain.OutcomeTimeout, status, ctx.Err())
		case errors.Is(err, domain.ErrRateLimited):
			return c.finish(items, domain.OutcomeRateLimitExhausted, status, err)
		case errors.Is(err, domain.ErrUpstream):
			return c.finish(items, domain.OutcomeUpstreamError, status, err)
		default:
			return domain.Failed(domain.PlatformAndroid, domain.OutcomeFailed, err)
		}
	}
	return c.finish(items, domain.OutcomeOK, 0, nil)
}

func (c *Client) finish(items []Item, o domain.Outcome, status int, err error) domain.FetchResult {
	all := c.mapItems(dedupe(items))
	domain.SortByDateDesc(all)
	return domain.FetchResult{
		Platform: domain.PlatformAndroid,
		Reviews:  domain.Truncate(all, c.opts.MaxReviews),
		Outcome:  o,
		Status:   status,
		Err:      err,
	}
}

// dedupe keeps the first occurrence of each review id. Items without an id
// are always kept.
func dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if it.ID != "" {
			if _, ok := seen[it.ID]; ok {
				continue
			}
			seen[it.ID] = struct{}{}
		}
		out = append(out, it)
	}
	return out
}

// mapItems drops items whose timestamp does not normalize.
func (c *Client) mapItems(items []Item) []domain.Review {
	out := make([]domain.Review, 0, len(items))
	for _, it := range items {
		date, err := datefmt.Normalize(it.At, datefmt.Native)
		if err != nil {
			observability.ObserveDropped(string(domain.PlatformAndroid), "date")
			log.Warn().Err(err).Str("review_id", it.ID).Msg("dropping play store review")
			continue
		}
		out = append(out, domain.Review{
			Date:              date,
			Username:          it.UserName,
			ReviewText:        it.Content,
			Rating:            it.Score,
			Platform:          domain.PlatformAndroid,
			DeveloperResponse: it.Reply,
			Language:          c.language(it.Content),
			SourceID:          it.ID,
		})
	}
	return out
}

func (c *Client) language(text string) domain.Language {
	if c.classify == nil {
		return domain.LanguageUnknown
	}
	return c.classify.Classify(text)
}
