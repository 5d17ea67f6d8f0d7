package decision

import (
	"context"
	"fmt"

	"github.com/vinayprograms/agentkit/llm"
	"golang.org/x/time/rate"
)

// LimitedProvider applies a shared request-rate budget to a provider.
// The supervisor and every specialist share one limiter so concurrent
// dispatches stay under the model's quota.
type LimitedProvider struct {
	llm.Provider
	limiter *rate.Limiter
}

// NewLimiter builds a limiter for a requests-per-minute budget. A
// non-positive rpm means unlimited.
func NewLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// RateLimited wraps a provider with a limiter. A nil limiter returns the
// provider unchanged.
func RateLimited(p llm.Provider, limiter *rate.Limiter) llm.Provider {
	if limiter == nil {
		return p
	}
	return &LimitedProvider{Provider: p, limiter: limiter}
}

// Chat waits for a token before delegating.
func (p *LimitedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.Provider.Chat(ctx, req)
}
