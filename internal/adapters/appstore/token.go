package appstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"review_scraper/internal/adapters/observability"
	"review_scraper/internal/domain"
)

const configMetaName = "web-experience-app/config/environment"

var tokenRe = regexp.MustCompile(`token%22%3A%22(.+?)%22`)

var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// PickUserAgent chooses a desktop browser user agent using r.
func PickUserAgent(r *rand.Rand) string {
	return desktopUserAgents[r.IntN(len(desktopUserAgents))]
}

// AcquireToken scrapes the bearer token the storefront page hands to its own
// web app. Every failure is reported as domain.ErrAuthentication.
func (c *Client) AcquireToken(ctx context.Context, sf Storefront) (string, error) {
	landing, err := BuildLandingURL(c.opts.LandingBase, sf)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, landing, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal(service, "landing", 0, time.Since(start))
		return "", fmt.Errorf("%w: landing request: %v", domain.ErrAuthentication, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal(service, "landing", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: landing status %d", domain.ErrAuthentication, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read landing: %v", domain.ErrAuthentication, err)
	}

	token, ok := ExtractBearerToken(body)
	if !ok {
		return "", fmt.Errorf("%w: no token on landing page", domain.ErrAuthentication)
	}
	if tokenExpired(token, c.now()) {
		return "", fmt.Errorf("%w: token already expired", domain.ErrAuthentication)
	}
	return "bearer " + token, nil
}

// ExtractBearerToken finds the config meta tag and pulls the URL-encoded
// token out of its content. The raw line scan covers markup the HTML parser
// does not surface as a meta element.
func ExtractBearerToken(html []byte) (string, bool) {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html)); err == nil {
		var token string
		doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if name, _ := s.Attr("name"); name != configMetaName {
				return true
			}
			content, _ := s.Attr("content")
			if m := tokenRe.FindStringSubmatch(content); len(m) == 2 {
				token = m[1]
			}
			return false
		})
		if token != "" {
			return token, true
		}
	}

	for line := range strings.SplitSeq(string(html), "\n") {
		if !strings.Contains(line, configMetaName) {
			continue
		}
		if m := tokenRe.FindStringSubmatch(line); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// tokenExpired reads exp without verifying the signature. Tokens that are not
// JWTs are assumed valid.
func tokenExpired(raw string, now time.Time) bool {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		log.Debug().Err(err).Msg("app store token is not a JWT")
		return false
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
