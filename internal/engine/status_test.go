package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
)

func TestPromptStepStatusTransitions(t *testing.T) {
	st := NewPromptStepStatus("open settings", 2)
	clock := st.StartedAt()
	st.now = func() time.Time { return clock.Add(3 * time.Second) }

	assert.False(t, st.Transition(Outcome{State: StateInProgress}))
	assert.False(t, st.IsFinished())

	require.True(t, st.Transition(ObjectiveComplete("done")))
	assert.Equal(t, 3*time.Second, st.Duration())

	// Terminal outcomes never change.
	assert.False(t, st.Transition(Failure(ReasonObjectiveFailed, "late", nil)))
	assert.Equal(t, StateSuccess, st.Outcome().State)

	st.now = func() time.Time { return clock.Add(time.Hour) }
	assert.Equal(t, 3*time.Second, st.Duration())
}

func TestPromptStepStatusRecentWindow(t *testing.T) {
	st := NewPromptStepStatus("p", 2)
	for _, c := range []string{"a", "b", "c"} {
		st.AddTurn(ChatMessage{Role: RoleAssistant, Content: c}, ChatMessage{Role: RoleTool, Content: c + "!"})
	}
	st.AddTurn()

	contents := func(ms []ChatMessage) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Content)
		}
		return out
	}
	if diff := cmp.Diff([]string{"b", "b!", "c", "c!"}, contents(st.Recent())); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, st.History(), 6)
}

func TestFailureFillsExplanation(t *testing.T) {
	err := &MaxCallsReachedError{MaxCalls: 3, Prompt: "p"}
	o := Failure(ReasonMaxCallsReached, "", err)
	assert.Equal(t, err.Error(), o.Explanation)
	assert.Equal(t, `failure(max_calls_reached): max calls limit of 3 reached for prompt "p"`, o.String())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  ErrorKind
		class RetryClass
	}{
		{"rate limit", errors.New("429 Too Many Requests"), KindRateLimit, RetryClassRetryable},
		{"auth", errors.New("401 unauthorized"), KindAuth, RetryClassNonRetryable},
		{"overloaded", errors.New("overloaded_error"), KindServer, RetryClassRetryable},
		{"timeout", errors.New("context deadline exceeded"), KindTimeout, RetryClassMaybe},
		{"network", errors.New("read tcp: connection reset by peer"), KindNetwork, RetryClassRetryable},
		{"bad request", errors.New("400 bad request: image too large"), KindInvalidRequest, RetryClassNonRetryable},
		{"unknown", errors.New("something odd"), KindUnknown, RetryClassNonRetryable},
		{"wrapped status wins", WrapLLMError(errors.New("boom"), 503, ""), KindServer, RetryClassRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, ClassifyError(tt.err))
			assert.Equal(t, tt.class, ClassifyLLMError(tt.err))
		})
	}
}

func TestExtractRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, ExtractRetryAfter(WrapLLMError(errors.New("slow down"), 429, "7")))
	assert.Equal(t, 2*time.Second, ExtractRetryAfter(errors.New("rate limited, retry after 2 seconds")))
	assert.Zero(t, ExtractRetryAfter(errors.New("nope")))
}

func TestRetryWithPolicy(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	t.Run("recovers", func(t *testing.T) {
		calls := 0
		var retries []int
		v, err := RetryWithPolicy(context.Background(), policy, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("503 service unavailable")
			}
			return 42, nil
		}, ClassifyLLMError, func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) })
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, []int{1, 2}, retries)
	})

	t.Run("exhausts", func(t *testing.T) {
		_, err := RetryWithPolicy(context.Background(), policy, func(context.Context) (int, error) {
			return 0, errors.New("503 service unavailable")
		}, ClassifyLLMError, nil)
		assert.True(t, IsRetryExhausted(err))
	})

	t.Run("non retryable", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(context.Background(), policy, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("401 unauthorized")
		}, ClassifyLLMError, nil)
		assert.Error(t, err)
		assert.False(t, IsRetryExhausted(err))
		assert.Equal(t, 1, calls)
	})
}

func TestReconstructHistory(t *testing.T) {
	rec := agent.NewPromptRecordingResult(
		[]tools.Tool{device.TapOnElementWithText{Text: "Login"}, device.InputText{Text: "bob"}},
		tools.Failuref("element not found"),
	)

	msgs := ReconstructHistory(rec)

	require.Len(t, msgs, 3)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	require.Len(t, msgs[0].ToolCalls, 2)
	assert.Equal(t, "tapOnElementWithText", msgs[0].ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"text": "Login"}, msgs[0].ToolCalls[0].Args)

	assert.Equal(t, "replay_1", msgs[1].ToolCallID)
	assert.Equal(t, "success", msgs[1].Content)
	assert.Equal(t, "replay_2", msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, "element not found")

	assert.Nil(t, ReconstructHistory(agent.RecordingSuccess{}))
}
