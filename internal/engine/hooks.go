package engine

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// Hook observes a prompt step as the runner drives it. Hooks run on the
// step's goroutine and must not block.
type Hook interface {
	OnStepStart(ctx context.Context, st *PromptStepStatus)
	OnBeforeLLM(ctx context.Context, st *PromptStepStatus, messages []ChatMessage, toolSchemas []ToolSchema)
	OnAfterLLM(ctx context.Context, st *PromptStepStatus, resp LLMResponse, elapsed time.Duration, err error)
	OnRetryAttempt(ctx context.Context, st *PromptStepStatus, attempt int, delay time.Duration, err error)
	OnStepDone(ctx context.Context, st *PromptStepStatus)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnStepStart(context.Context, *PromptStepStatus)                                   {}
func (NopHook) OnBeforeLLM(context.Context, *PromptStepStatus, []ChatMessage, []ToolSchema)      {}
func (NopHook) OnAfterLLM(context.Context, *PromptStepStatus, LLMResponse, time.Duration, error) {}
func (NopHook) OnRetryAttempt(context.Context, *PromptStepStatus, int, time.Duration, error)     {}
func (NopHook) OnStepDone(context.Context, *PromptStepStatus)                                    {}

// Hooks fans out to every hook in order.
type Hooks []Hook

func (hs Hooks) OnStepStart(ctx context.Context, st *PromptStepStatus) {
	for _, h := range hs {
		h.OnStepStart(ctx, st)
	}
}
func (hs Hooks) OnBeforeLLM(ctx context.Context, st *PromptStepStatus, m []ChatMessage, schemas []ToolSchema) {
	for _, h := range hs {
		h.OnBeforeLLM(ctx, st, m, schemas)
	}
}
func (hs Hooks) OnAfterLLM(ctx context.Context, st *PromptStepStatus, r LLMResponse, d time.Duration, err error) {
	for _, h := range hs {
		h.OnAfterLLM(ctx, st, r, d, err)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, st *PromptStepStatus, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, st, attempt, delay, err)
	}
}
func (hs Hooks) OnStepDone(ctx context.Context, st *PromptStepStatus) {
	for _, h := range hs {
		h.OnStepDone(ctx, st)
	}
}

// LoggerHook writes step progress to a zap logger.
type LoggerHook struct{ L *zap.Logger }

func (h LoggerHook) OnStepStart(_ context.Context, st *PromptStepStatus) {
	h.L.Info("step started", zap.String("task", st.TaskID()), zap.String("prompt", st.Prompt()))
}
func (h LoggerHook) OnBeforeLLM(_ context.Context, st *PromptStepStatus, msgs []ChatMessage, schemas []ToolSchema) {
	h.L.Debug("llm request",
		zap.String("task", st.TaskID()),
		zap.Int("call", st.CallCount()+1),
		zap.Int("messages", len(msgs)),
		zap.Int("tools", len(schemas)),
		zap.Int("estimated_tokens", EstimateMessageTokens(msgs)+EstimateSchemaTokens(schemas)))
}
func (h LoggerHook) OnAfterLLM(_ context.Context, st *PromptStepStatus, r LLMResponse, d time.Duration, err error) {
	if err != nil {
		h.L.Warn("llm call failed", zap.String("task", st.TaskID()), zap.Duration("elapsed", d), zap.Error(err))
		return
	}
	h.L.Debug("llm response",
		zap.String("task", st.TaskID()),
		zap.String("finish", r.FinishReason),
		zap.Int("tool_calls", len(r.ToolCalls)),
		zap.Int("prompt_tokens", r.Usage.Prompt),
		zap.Int("completion_tokens", r.Usage.Completion),
		zap.Duration("elapsed", d))
}
func (h LoggerHook) OnRetryAttempt(_ context.Context, st *PromptStepStatus, attempt int, delay time.Duration, err error) {
	h.L.Warn("retrying llm call",
		zap.String("task", st.TaskID()),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.String("kind", string(ClassifyError(err))),
		zap.Error(err))
}
func (h LoggerHook) OnStepDone(_ context.Context, st *PromptStepStatus) {
	o := st.Outcome()
	fields := []zap.Field{
		zap.String("task", st.TaskID()),
		zap.String("state", string(o.State)),
		zap.Int("calls", st.CallCount()),
		zap.Duration("duration", st.Duration()),
	}
	if o.State == StateFailure {
		fields = append(fields, zap.String("reason", string(o.Reason)), zap.String("explanation", o.Explanation))
	}
	h.L.Info("step finished", fields...)
}

// SessionHook writes model traffic and tool executions to a session log.
// It is both a Hook and an agent.Observer.
type SessionHook struct {
	NopHook
	Log      *session.Logger
	Sessions *session.Manager
	Model    string
}

// sessionID is the id carried by ctx, else the manager's current session.
func (h SessionHook) sessionID(ctx context.Context) string {
	if id, ok := SessionIDFrom(ctx); ok {
		return id
	}
	id, _ := h.Sessions.CurrentSessionID()
	return id
}

func (h SessionHook) OnBeforeLLM(ctx context.Context, st *PromptStepStatus, msgs []ChatMessage, schemas []ToolSchema) {
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	hasImage := false
	for _, m := range msgs {
		if len(m.Images) > 0 {
			hasImage = true
		}
	}
	h.Log.LogLLMRequest(ctx, h.sessionID(ctx), session.LLMRequestLog{
		TaskID:        st.TaskID(),
		Prompt:        st.Prompt(),
		Model:         h.Model,
		Call:          st.CallCount() + 1,
		Messages:      len(msgs),
		Tools:         names,
		HasScreenshot: hasImage,
	})
}

func (h SessionHook) OnAfterLLM(ctx context.Context, st *PromptStepStatus, r LLMResponse, d time.Duration, err error) {
	entry := session.LLMResponseLog{
		TaskID:           st.TaskID(),
		ResponseID:       r.ID,
		Text:             r.Assistant.Content,
		DurationMs:       d.Milliseconds(),
		PromptTokens:     r.Usage.Prompt,
		CompletionTokens: r.Usage.Completion,
	}
	for _, c := range r.ToolCalls {
		entry.ToolCalls = append(entry.ToolCalls, session.ToolCallLog{ID: c.ID, Name: c.Name, Args: argsJSON(c.Args)})
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.Log.LogLLMResponse(ctx, h.sessionID(ctx), entry)
}

// ToolExecuted implements agent.Observer.
func (h SessionHook) ToolExecuted(ctx context.Context, e agent.Execution) {
	h.Log.LogTool(ctx, h.sessionID(ctx), session.ToolLog{
		TaskID:     e.TraceID,
		ResponseID: e.LLMResponseID,
		Name:       e.Tool.Name().String(),
		Args:       tools.ArgsJSON(e.Tool),
		Status:     string(e.Result.Status),
		Message:    e.Result.Message,
		Fatal:      e.Result.Fatal,
		DurationMs: e.Duration.Milliseconds(),
	})
}

func argsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
