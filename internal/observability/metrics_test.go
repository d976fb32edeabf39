package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
)

func TestMetricsHook(t *testing.T) {
	m := NewMetrics()
	h := m.Hook()
	ctx := context.Background()
	st := engine.NewPromptStepStatus("p", 0)

	h.OnAfterLLM(ctx, st, engine.LLMResponse{Usage: engine.Usage{Prompt: 100, Completion: 20}}, time.Second, nil)
	h.OnAfterLLM(ctx, st, engine.LLMResponse{}, time.Second, errors.New("429 too many requests"))
	h.OnRetryAttempt(ctx, st, 1, time.Second, errors.New("429"))
	h.ToolExecuted(ctx, agent.Execution{Tool: device.PressBack{}, Result: tools.Success("ok"), Duration: time.Millisecond})
	h.ToolExecuted(ctx, agent.Execution{Tool: device.PressBack{}, Result: tools.FatalFailure(errors.New("adb gone"))})
	st.Transition(engine.Failure(engine.ReasonMaxCallsReached, "out of calls", nil))
	h.OnStepDone(ctx, st)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("rate_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRetries))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("prompt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolExecutions.WithLabelValues("pressBack", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolExecutions.WithLabelValues("pressBack", "fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("failure", "max_calls_reached")))
}

func TestMetricsSessionSink(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()
	started := session.Started("m", "c", driver.DeviceInfo{ID: "d"})
	ended := session.Succeeded(time.Second)

	require.NoError(t, m.Write(ctx, session.Event{Kind: session.EventStatus, Status: &started}))
	require.NoError(t, m.Write(ctx, session.Event{Kind: session.EventStatus, Status: &ended}))
	require.NoError(t, m.Write(ctx, session.Event{Kind: session.EventTool}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessions.WithLabelValues("started")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `trailblaze_sessions_total{status="succeeded"} 1`)
}
