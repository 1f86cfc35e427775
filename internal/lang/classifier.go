// Package lang tags review text as Chinese, English or unknown.
package lang

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
	"github.com/rs/zerolog/log"

	"review_scraper/internal/domain"
)

var asciiOnly = regexp.MustCompile(`^[A-Za-z0-9\s[:punct:]]+$`)

// Detector is a statistical language identifier returning an ISO 639-1 tag.
type Detector interface {
	Detect(text string) (string, error)
}

type Classifier struct {
	detector Detector
}

// New returns a Classifier backed by d. A nil d uses the whatlanggo detector.
func New(d Detector) *Classifier {
	if d == nil {
		d = WhatlangDetector{}
	}
	return &Classifier{detector: d}
}

// Classify never panics; detector failures map to LanguageUnknown.
func (c *Classifier) Classify(text string) domain.Language {
	if strings.TrimSpace(text) == "" {
		return domain.LanguageUnknown
	}
	text = strings.TrimSpace(gomoji.RemoveEmojis(text))
	if text == "" {
		return domain.LanguageUnknown
	}
	if hasCJK(text) {
		return domain.LanguageChinese
	}
	// digits and punctuation alone ("5/5", "!!!") count as English too
	if asciiOnly.MatchString(text) {
		return domain.LanguageEnglish
	}
	if c.detect(text) == "en" {
		return domain.LanguageEnglish
	}
	return domain.LanguageUnknown
}

func (c *Classifier) detect(text string) (tag string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("language detector panicked")
			tag = ""
		}
	}()
	tag, err := c.detector.Detect(text)
	if err != nil {
		log.Debug().Err(err).Msg("language detection failed")
		return ""
	}
	return tag
}

// hasCJK reports whether any rune lies in CJK Unified Ideographs (U+4E00..U+9FFF).
func hasCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
