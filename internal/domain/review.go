package domain

import (
	"cmp"
	"slices"
)

type Platform string

const (
	PlatformIOS     Platform = "iOS"
	PlatformAndroid Platform = "Android"
)

type Language string

const (
	LanguageChinese Language = "zh"
	LanguageEnglish Language = "en"
	LanguageUnknown Language = "unknown"
)

// Review is one normalized store review. Values are never mutated after a
// store client builds them; callers only reorder and truncate slices of them.
type Review struct {
	Date              string   `json:"date"` // YYYY-MM-DD
	Username          string   `json:"username"`
	ReviewText        string   `json:"review"`
	Rating            int      `json:"rating"`
	Platform          Platform `json:"platform"`
	DeveloperResponse string   `json:"developerResponse"`
	Language          Language `json:"language"`
	SourceID          string   `json:"-"` // store-side id, used for de-duplication
}

// SortByDateDesc orders reviews newest first. Reviews sharing a date keep
// their arrival order.
func SortByDateDesc(rs []Review) {
	// YYYY-MM-DD sorts lexically in date order.
	slices.SortStableFunc(rs, func(a, b Review) int {
		return cmp.Compare(b.Date, a.Date)
	})
}

// Truncate returns at most n reviews. n <= 0 means no limit.
func Truncate(rs []Review, n int) []Review {
	if n <= 0 || len(rs) <= n {
		return rs
	}
	return rs[:n]
}
