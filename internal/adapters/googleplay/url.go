package googleplay

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"review_scraper/internal/domain"
)

var appIDRe = regexp.MustCompile(`(?:^|[?&])id=([^&#]*)`)

// ParseURL returns the package name carried by the id= query parameter of a
// Play Store details URL.
func ParseURL(raw string) (string, error) {
	m := appIDRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", fmt.Errorf("%w: %q has no id= parameter", domain.ErrInvalidURL, raw)
	}
	id, err := url.QueryUnescape(m[1])
	if err != nil {
		id = m[1]
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: %q has an empty id= parameter", domain.ErrInvalidURL, raw)
	}
	return id, nil
}
