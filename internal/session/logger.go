package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventKind names a session log event.
type EventKind string

const (
	EventStatus      EventKind = "status"
	EventLLMRequest  EventKind = "llm_request"
	EventLLMResponse EventKind = "llm_response"
	EventTool        EventKind = "tool"
)

// LLMRequestLog summarizes one request sent to the model.
type LLMRequestLog struct {
	TaskID        string   `json:"taskId"`
	Prompt        string   `json:"prompt"`
	Model         string   `json:"model"`
	Call          int      `json:"call"`
	Messages      int      `json:"messages"`
	Tools         []string `json:"tools"`
	HasScreenshot bool     `json:"hasScreenshot"`
}

// ToolCallLog is one tool call as the model requested it.
type ToolCallLog struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// LLMResponseLog summarizes one model response.
type LLMResponseLog struct {
	TaskID           string        `json:"taskId"`
	ResponseID       string        `json:"responseId"`
	Text             string        `json:"text,omitempty"`
	ToolCalls        []ToolCallLog `json:"toolCalls,omitempty"`
	DurationMs       int64         `json:"durationMs"`
	PromptTokens     int           `json:"promptTokens,omitempty"`
	CompletionTokens int           `json:"completionTokens,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// ToolLog records one tool execution.
type ToolLog struct {
	TaskID     string `json:"taskId,omitempty"`
	ResponseID string `json:"responseId,omitempty"`
	Name       string `json:"name"`
	Args       string `json:"args"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Fatal      bool   `json:"fatal,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Event is one entry of a session log. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Seq         int64           `json:"seq"`
	SessionID   string          `json:"sessionId"`
	Kind        EventKind       `json:"kind"`
	Time        time.Time       `json:"time"`
	Status      *Status         `json:"status,omitempty"`
	LLMRequest  *LLMRequestLog  `json:"llmRequest,omitempty"`
	LLMResponse *LLMResponseLog `json:"llmResponse,omitempty"`
	Tool        *ToolLog        `json:"tool,omitempty"`
}

// Sink receives events in emission order.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Write(ctx context.Context, e Event) error { return f(ctx, e) }

// Logger assigns sequence numbers and fans events out to sinks. Emission
// is serialized so every sink observes the same order.
type Logger struct {
	mu    sync.Mutex
	seq   int64
	sinks []Sink
	ended map[string]bool
	log   *zap.Logger
	now   func() time.Time
}

// NewLogger creates a logger writing to sinks.
func NewLogger(log *zap.Logger, sinks ...Sink) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{sinks: sinks, ended: make(map[string]bool), log: log.Named("session"), now: time.Now}
}

// AddSink registers another sink for subsequent events.
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Logger) LogStatus(ctx context.Context, sessionID string, s Status) Event {
	return l.emit(ctx, Event{SessionID: sessionID, Kind: EventStatus, Status: &s})
}

// EndSession logs the terminal status of sessionID. Only the first call per
// session is logged; later ones return false.
func (l *Logger) EndSession(ctx context.Context, sessionID string, s Status) (Event, bool) {
	l.mu.Lock()
	if l.ended[sessionID] {
		l.mu.Unlock()
		return Event{}, false
	}
	l.ended[sessionID] = true
	l.mu.Unlock()
	return l.LogStatus(ctx, sessionID, s), true
}

// Ended reports whether a terminal status was logged for sessionID.
func (l *Logger) Ended(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ended[sessionID]
}

func (l *Logger) LogLLMRequest(ctx context.Context, sessionID string, r LLMRequestLog) Event {
	return l.emit(ctx, Event{SessionID: sessionID, Kind: EventLLMRequest, LLMRequest: &r})
}

func (l *Logger) LogLLMResponse(ctx context.Context, sessionID string, r LLMResponseLog) Event {
	return l.emit(ctx, Event{SessionID: sessionID, Kind: EventLLMResponse, LLMResponse: &r})
}

func (l *Logger) LogTool(ctx context.Context, sessionID string, t ToolLog) Event {
	return l.emit(ctx, Event{SessionID: sessionID, Kind: EventTool, Tool: &t})
}

func (l *Logger) emit(ctx context.Context, e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.Seq = l.seq
	e.Time = l.now()
	for _, s := range l.sinks {
		// Sink failures never interrupt the run.
		if err := s.Write(ctx, e); err != nil {
			l.log.Warn("session sink write failed",
				zap.String("session", e.SessionID),
				zap.String("kind", string(e.Kind)),
				zap.Error(err))
		}
	}
	return e
}

// ZapSink mirrors events into the structured log.
type ZapSink struct {
	Log *zap.Logger
}

func (z ZapSink) Write(_ context.Context, e Event) error {
	fields := []zap.Field{zap.String("session", e.SessionID), zap.Int64("seq", e.Seq)}
	switch e.Kind {
	case EventStatus:
		fields = append(fields, zap.String("status", e.Status.String()))
	case EventLLMRequest:
		fields = append(fields, zap.String("task", e.LLMRequest.TaskID), zap.Int("call", e.LLMRequest.Call), zap.Int("messages", e.LLMRequest.Messages))
	case EventLLMResponse:
		fields = append(fields, zap.String("task", e.LLMResponse.TaskID), zap.Int("toolCalls", len(e.LLMResponse.ToolCalls)), zap.Int64("durationMs", e.LLMResponse.DurationMs))
	case EventTool:
		fields = append(fields, zap.String("tool", e.Tool.Name), zap.String("args", e.Tool.Args), zap.String("result", e.Tool.Status))
	}
	z.Log.Info(string(e.Kind), fields...)
	return nil
}
