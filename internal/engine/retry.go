package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for a specific operation type.
type RetryPolicy struct {
	MaxRetries   int           `mapstructure:"max_retries"`   // 0 = no retries
	InitialDelay time.Duration `mapstructure:"initial_delay"` // delay before first retry
	MaxDelay     time.Duration `mapstructure:"max_delay"`     // delay cap
	Multiplier   float64       `mapstructure:"multiplier"`    // exponential backoff multiplier
	Jitter       bool          `mapstructure:"jitter"`        // add up to 20% random delay
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy executes fn with retry logic based on the policy.
// Returns the result on success, or the last error if all retries are exhausted.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T

	attempt := 0

	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		class := classifyError(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}

		if attempt >= policy.MaxRetries {
			return zero, NewRetryExhaustedError(err, attempt, policy.MaxRetries, false)
		}

		// "maybe" errors get at most two retries
		if class == RetryClassMaybe && attempt >= 2 {
			return zero, NewRetryExhaustedError(err, attempt, 2, true)
		}

		delay := calculateDelay(policy, attempt, err)

		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}

		attempt++
	}
}

// calculateDelay computes the delay for a retry attempt.
func calculateDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	if retryAfter := ExtractRetryAfter(err); retryAfter > 0 {
		if retryAfter > policy.MaxDelay {
			return policy.MaxDelay
		}
		return retryAfter
	}

	// initialDelay * (multiplier ^ attempt)
	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))

	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}

	return time.Duration(delay)
}

// RetryLLMCall wraps an LLM call with retry logic.
func RetryLLMCall(
	ctx context.Context,
	policy RetryPolicy,
	llm LLMClient,
	model string,
	messages []ChatMessage,
	toolSchemas []ToolSchema,
	opts ChatOptions,
	onRetry func(attempt int, delay time.Duration, err error),
) (LLMResponse, error) {
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (LLMResponse, error) {
			return llm.Chat(ctx, model, messages, toolSchemas, opts)
		},
		ClassifyLLMError,
		onRetry,
	)
}
