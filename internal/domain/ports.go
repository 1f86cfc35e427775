package domain

import "context"

// StoreClient fetches the reviews behind one storefront URL. Implementations
// never return an error; failures are reported through FetchResult.Outcome.
type StoreClient interface {
	FetchAll(ctx context.Context, rawURL string) FetchResult
}

// Classifier maps review text to a coarse language tag.
type Classifier interface {
	Classify(text string) Language
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// ScrapeRequest names the storefronts to read; either may be empty.
type ScrapeRequest struct {
	AppleStore string `json:"appleStore,omitempty"`
	GooglePlay string `json:"googlePlay,omitempty"`
}
