package engine

import (
	"time"

	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
)

const (
	// DefaultMaxCalls bounds model calls per prompt step.
	DefaultMaxCalls = 50
	// DefaultHistoryWindow is the number of recent turns sent with each request.
	DefaultHistoryWindow = 5
)

// RunnerConfig holds the knobs of a prompt-step runner.
type RunnerConfig struct {
	Model    string
	Chat     ChatOptions
	MaxCalls int
	// HistoryWindow is the number of past turns replayed to the model.
	HistoryWindow int
	SetOfMark     bool
	// CaptureAttempts bounds screen capture retries per turn.
	CaptureAttempts int
	CaptureBackoff  func(attempt int) time.Duration
	Retry           RetryPolicy
	// SelfHeal hands a failed replay to the model, seeded with the replayed
	// tools as history, instead of failing the step.
	SelfHeal bool
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Chat:            ChatOptions{Temperature: 0, MaxOutputTokens: 1024},
		MaxCalls:        DefaultMaxCalls,
		HistoryWindow:   DefaultHistoryWindow,
		SetOfMark:       true,
		CaptureAttempts: screenstate.DefaultMaxAttempts,
		CaptureBackoff:  screenstate.LinearBackoff,
		Retry:           DefaultRetryPolicy(),
	}
}

// DefaultRetryPolicy returns the policy used for model calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	d := DefaultRunnerConfig()
	if c.MaxCalls <= 0 {
		c.MaxCalls = d.MaxCalls
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.CaptureAttempts <= 0 {
		c.CaptureAttempts = d.CaptureAttempts
	}
	if c.CaptureBackoff == nil {
		c.CaptureBackoff = d.CaptureBackoff
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	return c
}

func (c RunnerConfig) captureOptions() screenstate.Options {
	return screenstate.Options{
		SetOfMark:   c.SetOfMark,
		MaxAttempts: c.CaptureAttempts,
		Backoff:     c.CaptureBackoff,
	}
}
