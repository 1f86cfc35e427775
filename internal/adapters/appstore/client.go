// Package appstore reads customer reviews from Apple's App Store web API.
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"review_scraper/internal/adapters/observability"
	"review_scraper/internal/domain"
)

const (
	service     = "appstore"
	firstOffset = "1"
)

// Throttle paces successive page requests. *rate.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Sleeper waits for d and reports false if ctx ended first.
type Sleeper func(ctx context.Context, d time.Duration) bool

type Options struct {
	LandingBase string // https://apps.apple.com
	APIBase     string // https://amp-api.apps.apple.com
	Locale      string
	PageSize    int
	MaxReviews  int
	MaxRetries  int           // attempts per page on 429
	BaseDelay   time.Duration // attempt n waits n*BaseDelay
	PageDelay   time.Duration
	Timeout     time.Duration

	HTTPClient *http.Client
	Throttle   Throttle
	Sleep      Sleeper
	Rand       *rand.Rand
	Now        func() time.Time
	Classifier domain.Classifier
}

type Client struct {
	opts     Options
	hc       *http.Client
	throttle Throttle
	sleep    Sleeper
	now      func() time.Time
	classify domain.Classifier

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(o Options) *Client {
	if o.LandingBase == "" {
		o.LandingBase = "https://apps.apple.com"
	}
	if o.APIBase == "" {
		o.APIBase = "https://amp-api.apps.apple.com"
	}
	if o.Locale == "" {
		o.Locale = "en-GB"
	}
	if o.PageSize <= 0 {
		o.PageSize = 20
	}
	if o.MaxReviews <= 0 {
		o.MaxReviews = 250
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	c := &Client{opts: o, hc: o.HTTPClient, throttle: o.Throttle, sleep: o.Sleep, now: o.Now, classify: o.Classifier, rnd: o.Rand}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: o.Timeout}
	}
	if c.throttle == nil {
		c.throttle = rate.NewLimiter(rate.Every(o.PageDelay), 1)
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return c
}

func (c *Client) userAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PickUserAgent(c.rnd)
}

// Page is one page of the reviews API. Next is empty on the last page.
type Page struct {
	Reviews []domain.Review
	Dropped int
	Next    string
	Status  int
}

type reviewsResponse struct {
	Data []reviewItem `json:"data"`
	Next string       `json:"next"`
}

type reviewItem struct {
	ID         string `json:"id"`
	Attributes struct {
		Date              string `json:"date"`
		Review            string `json:"review"`
		Rating            int    `json:"rating"`
		UserName          string `json:"userName"`
		Title             string `json:"title"`
		DeveloperResponse *struct {
			Body string `json:"body"`
		} `json:"developerResponse"`
	} `json:"attributes"`
}

// FetchPage reads one page of reviews, retrying 429 responses with linear
// backoff. Exhausted retries yield ErrRateLimited with status 429; any other
// non-200 yields ErrUpstream without retrying.
func (c *Client) FetchPage(ctx context.Context, sf Storefront, token, offset string) (Page, error) {
	landing, err := BuildLandingURL(c.opts.LandingBase, sf)
	if err != nil {
		return Page{}, err
	}
	endpoint := c.reviewsURL(sf, offset)

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Page{}, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", token)
		req.Header.Set("Origin", "https://apps.apple.com")
		req.Header.Set("Referer", landing)
		req.Header.Set("User-Agent", c.userAgent())

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, "reviews", 0, time.Since(start))
			return Page{}, fmt.Errorf("reviews request: %w", err)
		}
		observability.ObserveExternal(service, "reviews", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			var body reviewsResponse
			err := json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if err != nil {
				return Page{Status: http.StatusOK}, fmt.Errorf("decode reviews: %w", err)
			}
			reviews, dropped := c.mapItems(body.Data)
			return Page{Reviews: reviews, Dropped: dropped, Next: nextOffset(body.Next), Status: http.StatusOK}, nil

		case http.StatusTooManyRequests:
			wait := time.Duration(attempt) * c.opts.BaseDelay
			if ra := retryAfter(resp); ra > wait {
				wait = ra
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if attempt == c.opts.MaxRetries {
				break
			}
			log.Debug().Str("app_id", sf.AppID).Int("attempt", attempt).Dur("wait", wait).Msg("app store rate limited")
			if !c.sleep(ctx, wait) {
				return Page{Status: http.StatusTooManyRequests}, ctx.Err()
			}

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return Page{Status: resp.StatusCode}, fmt.Errorf("%w: reviews status %d: %s",
				domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return Page{Status: http.StatusTooManyRequests},
		fmt.Errorf("%w: gave up after %d attempts", domain.ErrRateLimited, c.opts.MaxRetries)
}

func (c *Client) reviewsURL(sf Storefront, offset string) string {
	q := url.Values{}
	q.Set("l", c.opts.Locale)
	q.Set("offset", offset)
	q.Set("limit", strconv.Itoa(c.opts.PageSize))
	q.Set("platform", "web")
	q.Set("additionalPlatforms", "appletv,ipad,iphone,mac")
	return fmt.Sprintf("%s/v1/catalog/%s/apps/%s/reviews?%s",
		strings.TrimSuffix(c.opts.APIBase, "/"), sf.Country, sf.AppID, q.Encode())
}

var offsetRe = regexp.MustCompile(`offset=([0-9]+)`)

// nextOffset pulls offset= out of the API's relative next link.
func nextOffset(next string) string {
	if next == "" {
		return ""
	}
	if u, err := url.Parse(next); err == nil {
		if o := u.Query().Get("offset"); o != "" {
			return o
		}
	}
	if m := offsetRe.FindStringSubmatch(next); m != nil {
		return m[1]
	}
	return ""
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
