package appstore

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

var tracer = observability.Tracer("review_scraper/appstore")

// FetchAll collects up to MaxReviews reviews for the storefront URL, newest
// first. It never fails outright: the Outcome says how far it got, and
// upstream, rate-limit and deadline stops keep the pages already read.
func (c *Client) FetchAll(ctx context.Context, rawURL string) (res domain.FetchResult) {
	ctx, span := tracer.Start(ctx, "appstore.FetchAll")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res = domain.Failed(domain.PlatformIOS, domain.OutcomeFailed, fmt.Errorf("appstore: panic: %v", r))
		}
		span.SetAttributes(
			attribute.String("outcome", string(res.Outcome)),
			attribute.Int("reviews", len(res.Reviews)),
		)
	}()

	sf, err := ParseURL(rawURL)
	if err != nil {
		return domain.Failed(domain.PlatformIOS, domain.OutcomeInvalidURL, err)
	}
	span.SetAttributes(attribute.String("country", sf.Country), attribute.String("app_id", sf.AppID))

	token, err := c.AcquireToken(ctx, sf)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Failed(domain.PlatformIOS, domain.OutcomeTimeout, ctx.Err())
		}
		if errors.Is(err, domain.ErrInvalidURL) {
			return domain.Failed(domain.PlatformIOS, domain.OutcomeInvalidURL, err)
		}
		if errors.Is(err, domain.ErrAuthentication) {
			return domain.Failed(domain.PlatformIOS, domain.OutcomeAuthFailure, err)
		}
		return domain.Failed(domain.PlatformIOS, domain.OutcomeFailed, err)
	}

	all := make([]domain.Review, 0, c.opts.MaxReviews)
	offset := firstOffset
	for page := 1; ; page++ {
		p, err := c.FetchPage(ctx, sf, token, offset)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return c.finish(all, domain.OutcomeTimeout, p.Status, ctx.Err())
		case errors.Is(err, domain.ErrRateLimited):
			return c.finish(all, domain.OutcomeRateLimitExhausted, p.Status, err)
		case errors.Is(err, domain.ErrUpstream):
			return c.finish(all, domain.OutcomeUpstreamError, p.Status, err)
		default:
			return domain.Failed(domain.PlatformIOS, domain.OutcomeFailed, err)
		}

		all = append(all, p.Reviews...)
		log.Debug().Str("app_id", sf.AppID).Int("page", page).Int("got", len(p.Reviews)).
			Int("total", len(all)).Str("next", p.Next).Msg("app store page")

		if p.Next == "" || len(all) >= c.opts.MaxReviews {
			break
		}
		offset = p.Next
		if err := c.throttle.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return c.finish(all, domain.OutcomeTimeout, 0, ctx.Err())
			}
			return domain.Failed(domain.PlatformIOS, domain.OutcomeFailed, err)
		}
	}
	return c.finish(all, domain.OutcomeOK, 0, nil)
}

func (c *Client) finish(all []domain.Review, o domain.Outcome, status int, err error) domain.FetchResult {
	domain.SortByDateDesc(all)
	return domain.FetchResult{
		Platform: domain.PlatformIOS,
		Reviews:  domain.Truncate(all, c.opts.MaxReviews),
		Outcome:  o,
		Status:   status,
		Err:      err,
	}
}

// mapItems drops items whose date does not normalize.
func (c *Client) mapItems(items []reviewItem) ([]domain.Review, int) {
	out := make([]domain.Review, 0, len(items))
	dropped := 0
	for _, it := range items {
		a := it.Attributes
		date, err := datefmt.Normalize(a.Date, datefmt.ISO8601)
		if err != nil {
			dropped++
			observability.ObserveDropped(string(domain.PlatformIOS), "date")
			log.Warn().Err(err).Str("review_id", it.ID).Msg("dropping app store review")
			continue
		}
		resp := ""
		if a.DeveloperResponse != nil {
			resp = a.DeveloperResponse.Body
		}
		out = append(out, domain.Review{
			Date:              date,
			Username:          a.UserName,
			ReviewText:        a.Review,
			Rating:            a.Rating,
			Platform:          domain.PlatformIOS,
			DeveloperResponse: resp,
			Language:          c.language(a.Review),
			SourceID:          it.ID,
		})
	}
	return out, dropped
}

func (c *Client) language(text string) domain.Language {
	if c.classify == nil {
		return domain.LanguageUnknown
	}
	return c.classify.Classify(text)
}
