package domain

import "fmt"

// Outcome classifies how a per-platform fetch ended.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeInvalidURL         Outcome = "invalid_url"
	OutcomeAuthFailure        Outcome = "auth_failure"
	OutcomeUpstreamError      Outcome = "upstream_error"
	OutcomeRateLimitExhausted Outcome = "rate_limited"
	OutcomeTimeout            Outcome = "timeout" // request budget ran out; keeps what was read
	OutcomeFailed             Outcome = "failed"
)

// FetchResult is what a store client returns for one storefront URL.
// Degraded outcomes may still carry the reviews collected before the failure.
type FetchResult struct {
	Platform Platform
	Reviews  []Review
	Outcome  Outcome
	Status   int // upstream HTTP status for UpstreamError / RateLimitExhausted
	Err      error
}

func (r FetchResult) Degraded() bool { return r.Outcome != OutcomeOK }

func (r FetchResult) String() string {
	if r.Status != 0 {
		return fmt.Sprintf("%s:%s(%d) reviews=%d", r.Platform, r.Outcome, r.Status, len(r.Reviews))
	}
	return fmt.Sprintf("%s:%s reviews=%d", r.Platform, r.Outcome, len(r.Reviews))
}

// Failed builds an empty result for outcome o.
func Failed(p Platform, o Outcome, err error) FetchResult {
	return FetchResult{Platform: p, Reviews: []Review{}, Outcome: o, Err: err}
}
