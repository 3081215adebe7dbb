package venue

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter bounds an adapter's outbound request rate against one venue:
// websocket connect attempts share a single per-venue budget so a venue
// with many configured symbols is not hammered with simultaneous dials
// after a mass disconnect.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter allowing rps requests/second with a
// burst of 2x rps plus one (truncated to an integer).
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 1.0
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), int(rps*2)+1)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
