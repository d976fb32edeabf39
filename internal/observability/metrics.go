package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
)

// Metrics holds the trailblaze collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	llmCalls       *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	llmRetries     prometheus.Counter
	llmTokens      *prometheus.CounterVec
	steps          *prometheus.CounterVec
	sessions       *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trailblaze_tool_executions_total",
			Help: "Tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trailblaze_tool_duration_seconds",
			Help:    "Duration of tool executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trailblaze_llm_calls_total",
			Help: "Model calls by outcome.",
		}, []string{"outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trailblaze_llm_latency_seconds",
			Help:    "Latency of model calls including retries.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"outcome"}),
		llmRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trailblaze_llm_retries_total",
			Help: "Retried model calls.",
		}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trailblaze_llm_tokens_total",
			Help: "Tokens reported by the provider.",
		}, []string{"kind"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trailblaze_prompt_steps_total",
			Help: "Finished prompt steps by state and failure reason.",
		}, []string{"state", "reason"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trailblaze_sessions_total",
			Help: "Ended sessions by terminal status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.toolExecutions, m.toolDuration,
		m.llmCalls, m.llmLatency, m.llmRetries, m.llmTokens,
		m.steps, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hook returns the engine hook and agent observer feeding m.
func (m *Metrics) Hook() *MetricsHook { return &MetricsHook{m: m} }

// Write implements session.Sink and counts terminal statuses.
func (m *Metrics) Write(_ context.Context, e session.Event) error {
	if e.Kind == session.EventStatus && e.Status != nil && e.Status.IsEnded() {
		m.sessions.WithLabelValues(string(e.Status.Kind)).Inc()
	}
	return nil
}

// MetricsHook records step and model call metrics. It implements
// engine.Hook and agent.Observer.
type MetricsHook struct {
	engine.NopHook
	m *Metrics
}

var (
	_ engine.Hook    = (*MetricsHook)(nil)
	_ agent.Observer = (*MetricsHook)(nil)
	_ session.Sink   = (*Metrics)(nil)
)

func (h *MetricsHook) OnAfterLLM(_ context.Context, _ *engine.PromptStepStatus, r engine.LLMResponse, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(engine.ClassifyError(err))
	}
	h.m.llmCalls.WithLabelValues(outcome).Inc()
	h.m.llmLatency.WithLabelValues(outcome).Observe(d.Seconds())
	if err == nil {
		h.m.llmTokens.WithLabelValues("prompt").Add(float64(r.Usage.Prompt))
		h.m.llmTokens.WithLabelValues("completion").Add(float64(r.Usage.Completion))
	}
}

func (h *MetricsHook) OnRetryAttempt(context.Context, *engine.PromptStepStatus, int, time.Duration, error) {
	h.m.llmRetries.Inc()
}

func (h *MetricsHook) OnStepDone(_ context.Context, st *engine.PromptStepStatus) {
	o := st.Outcome()
	h.m.steps.WithLabelValues(string(o.State), string(o.Reason)).Inc()
}

// ToolExecuted implements agent.Observer.
func (h *MetricsHook) ToolExecuted(_ context.Context, e agent.Execution) {
	name := e.Tool.Name().String()
	status := string(e.Result.Status)
	if e.Result.Fatal {
		status = "fatal"
	}
	h.m.toolExecutions.WithLabelValues(name, status).Inc()
	h.m.toolDuration.WithLabelValues(name).Observe(e.Duration.Seconds())
}
