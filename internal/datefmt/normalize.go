// Package datefmt turns store-specific review timestamps into YYYY-MM-DD.
package datefmt

import (
	"fmt"
	"strings"
	"time"

	"review_scraper/internal/domain"
)

const Layout = "2006-01-02"

type Format int

const (
	// ISO8601 is the App Store form, e.g. 2024-03-15T10:00:00Z.
	ISO8601 Format = iota
	// Native is an already-decoded time (Play Store timestamps).
	Native
)

func (f Format) String() string {
	switch f {
	case ISO8601:
		return "iso8601"
	case Native:
		return "native"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Normalize dispatches raw to the parser for format. Errors wrap
// domain.ErrDateParse.
func Normalize(raw any, format Format) (string, error) {
	switch format {
	case ISO8601:
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s expects a string, got %T", domain.ErrDateParse, format, raw)
		}
		return FromISO8601(s)
	case Native:
		switch v := raw.(type) {
		case time.Time:
			return FromTime(v)
		case int64:
			return FromUnix(v)
		case float64:
			return FromUnix(int64(v))
		}
		return "", fmt.Errorf("%w: %s expects a time value, got %T", domain.ErrDateParse, format, raw)
	}
	return "", fmt.Errorf("%w: unknown format %s", domain.ErrDateParse, format)
}

// FromISO8601 keeps the calendar date in the timestamp's own offset.
func FromISO8601(raw string) (string, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrDateParse, raw, err)
	}
	return t.Format(Layout), nil
}

func FromTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero time", domain.ErrDateParse)
	}
	return t.UTC().Format(Layout), nil
}

func FromUnix(sec int64) (string, error) {
	if sec <= 0 {
		return "", fmt.Errorf("%w: unix seconds %d", domain.ErrDateParse, sec)
	}
	return FromTime(time.Unix(sec, 0))
}
