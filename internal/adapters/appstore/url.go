package appstore

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"review_scraper/internal/domain"
)

var (
	ErrCountryInvalid = errors.New("country must be a 2-letter ISO code")
	ErrAppIDInvalid   = errors.New("app ID must be numeric")
	ErrSlugRequired   = errors.New("app slug is required")
)

var (
	storefrontRe = regexp.MustCompile(`apps\.apple\.com/(\w+)/app/([^/?#]+)/id(\d+)`)
	countryRe    = regexp.MustCompile(`^[a-z]{2}$`)
	appIDRe      = regexp.MustCompile(`^[0-9]+$`)
)

// Storefront identifies one app in one App Store country.
type Storefront struct {
	Country string
	Slug    string
	AppID   string
}

// ParseURL accepts percent-encoded input such as
// https://apps.apple.com/tw/app/%E6%87%89%E7%94%A8/id123456.
// The slug found in the URL is the one used for every later request.
func ParseURL(raw string) (Storefront, error) {
	decoded, err := url.PathUnescape(strings.TrimSpace(raw))
	if err != nil {
		decoded = raw
	}
	m := storefrontRe.FindStringSubmatch(decoded)
	if m == nil {
		return Storefront{}, fmt.Errorf("%w: %q is not an App Store app URL", domain.ErrInvalidURL, raw)
	}
	return Storefront{
		Country: strings.ToLower(m[1]),
		Slug:    m[2],
		AppID:   m[3],
	}, nil
}

// BuildLandingURL returns {base}/{country}/app/{slug}/id{appID}.
func BuildLandingURL(base string, sf Storefront) (string, error) {
	country := strings.ToLower(strings.TrimSpace(sf.Country))
	slug := strings.TrimSpace(sf.Slug)
	appID := strings.TrimSpace(sf.AppID)

	if !countryRe.MatchString(country) {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURL, ErrCountryInvalid)
	}
	if slug == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURL, ErrSlugRequired)
	}
	if !appIDRe.MatchString(appID) {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURL, ErrAppIDInvalid)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("landing base: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + country + "/app/" + slug + "/id" + appID
	return u.String(), nil
}
