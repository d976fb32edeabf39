package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
)

// RateLimited throttles calls to the wrapped client.
type RateLimited struct {
	next    engine.LLMClient
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with a burst of one.
// A non-positive perMinute returns next unchanged.
func NewRateLimited(next engine.LLMClient, perMinute int) engine.LLMClient {
	if perMinute <= 0 {
		return next
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Chat waits for a token, then forwards the call.
func (r *RateLimited) Chat(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return engine.LLMResponse{}, err
	}
	return r.next.Chat(ctx, model, messages, toolSchemas, opts)
}
