package enrichment

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited bounds the call rate of a remote Enricher. Callers wait for a
// token; a wait that is cancelled fails the call.
type RateLimited struct {
	next    Enricher
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limit of perSecond calls. A non-positive
// limit returns next unchanged.
func NewRateLimited(next Enricher, perSecond float64) Enricher {
	if perSecond <= 0 {
		return next
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (r *RateLimited) Enrich(ctx context.Context, text, target string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Enrich(ctx, text, target)
}
