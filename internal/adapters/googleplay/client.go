// Package googleplay reads customer reviews from the Play Store web frontend.
package googleplay

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"review_scraper/internal/adapters/observability"
	"review_scraper/internal/domain"
)

const service = "googleplay"

type Locale struct {
	Lang    string // hl, e.g. zh_TW
	Country string // gl, e.g. tw
}

func (l Locale) String() string { return l.Lang + "/" + l.Country }

// DefaultLocales are read in order; later locales only add reviews not seen yet.
var DefaultLocales = []Locale{{Lang: "zh_TW", Country: "tw"}, {Lang: "en", Country: "tw"}}

// Throttle paces successive page requests. *rate.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Sleeper waits for d and reports false if ctx ended first.
type Sleeper func(ctx context.Context, d time.Duration) bool

type Options struct {
	Base       string // https://play.google.com
	Locales    []Locale
	PageSize   int
	MaxReviews int
	MaxRetries int // attempts per page on 429, 5xx and network errors
	PageDelay  time.Duration
	Timeout    time.Duration

	HTTPClient *http.Client
	Throttle   Throttle
	Sleep      Sleeper
	Classifier domain.Classifier
}

type Client struct {
	opts     Options
	hc       *http.Client
	throttle Throttle
	sleep    Sleeper
	classify domain.Classifier
}

func New(o Options) *Client {
	if o.Base == "" {
		o.Base = "https://play.google.com"
	}
	if len(o.Locales) == 0 {
		o.Locales = DefaultLocales
	}
	if o.PageSize <= 0 {
		o.PageSize = 199
	}
	if o.MaxReviews <= 0 {
		o.MaxReviews = 250
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	c := &Client{opts: o, hc: o.HTTPClient, throttle: o.Throttle, sleep: o.Sleep, classify: o.Classifier}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: o.Timeout}
	}
	if c.throttle == nil {
		c.throttle = rate.NewLimiter(rate.Every(o.PageDelay), 1)
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// Page is one batchexecute response. Next is empty on the last page.
type Page struct {
	Items  []Item
	Next   string
	Status int
}

// FetchLocale pages newest-first through one locale until the continuation
// token runs out or limit items are collected. On error it returns the items
// read so far along with the failing status.
func (c *Client) FetchLocale(ctx context.Context, appID string, loc Locale, limit int) ([]Item, int, error) {
	var all []Item
	token := ""
	for page := 1; ; page++ {
		p, err := c.FetchPage(ctx, appID, loc, token)
		if err != nil {
			return all, p.Status, err
		}
		all = append(all, p.Items...)
		log.Debug().Str("app_id", appID).Str("locale", loc.String()).Int("page", page).
			Int("got", len(p.Items)).Int("total", len(all)).Msg("play store page")

		if p.Next == "" || len(p.Items) == 0 || (limit > 0 && len(all) >= limit) {
			return all, http.StatusOK, nil
		}
		token = p.Next
		if err := c.throttle.Wait(ctx); err != nil {
			return all, 0, err
		}
	}
}

// FetchPage posts one UsvDTd call. 429, 5xx and transport errors are retried
// with exponential backoff. Exhausting retries on 429 yields ErrRateLimited,
// on transport errors the bare transport error, and any other non-200 yields
// ErrUpstream.
func (c *Client) FetchPage(ctx context.Context, appID string, loc Locale, token string) (Page, error) {
	freq, err := requestBody(appID, c.opts.PageSize, token)
	if err != nil {
		return Page{}, err
	}
	form := url.Values{"f.req": {freq}}.Encode()
	q := url.Values{"hl": {loc.Lang}, "gl": {loc.Country}}
	endpoint := strings.TrimSuffix(c.opts.Base, "/") + "/_/PlayStoreUi/data/batchexecute?" + q.Encode()

	var lastErr error
	status := 0
	for i := 0; i < c.opts.MaxRetries; i++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
		if err != nil {
			return Page{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, "batchexecute", 0, time.Since(start))
			if ctx.Err() != nil {
				return Page{}, ctx.Err()
			}
			lastErr = fmt.Errorf("batchexecute request: %w", err)
			status = 0
			if i < c.opts.MaxRetries-1 && c.sleep(ctx, backoff(i)) {
				continue
			}
			break
		}
		observability.ObserveExternal(service, "batchexecute", resp.StatusCode, time.Since(start))
		status = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
			resp.Body.Close()
			if err != nil {
				return Page{Status: http.StatusOK}, fmt.Errorf("read batchexecute: %w", err)
			}
			items, next, err := parsePage(body)
			if err != nil {
				return Page{Status: http.StatusOK}, err
			}
			return Page{Items: items, Next: next, Status: http.StatusOK}, nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i == c.opts.MaxRetries-1 {
				break
			}
			log.Debug().Str("app_id", appID).Int("status", resp.StatusCode).Dur("wait", wait).Msg("play store retry")
			if !c.sleep(ctx, wait) {
				return Page{Status: status}, ctx.Err()
			}

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return Page{Status: resp.StatusCode}, fmt.Errorf("%w: batchexecute status %d: %s",
				domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	if ctx.Err() != nil {
		return Page{Status: status}, ctx.Err()
	}
	if lastErr == nil {
		return Page{}, errors.New("no attempt made")
	}
	switch {
	case status == 0:
		// transport failure, same as the App Store client: no partial result
		return Page{}, lastErr
	case status == http.StatusTooManyRequests:
		return Page{Status: status}, fmt.Errorf("%w: %v", domain.ErrRateLimited, lastErr)
	}
	return Page{Status: status}, fmt.Errorf("%w: %v", domain.ErrUpstream, lastErr)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
