package tools

import (
	"context"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
)

// ElementComparator evaluates fuzzy statements against the current screen.
// The engine supplies an LLM-backed implementation.
type ElementComparator interface {
	// EvaluateBoolean decides whether statement holds on screen and explains why.
	EvaluateBoolean(ctx context.Context, screen *screenstate.ScreenState, statement string) (bool, string, error)
	// EvaluateString extracts the value described by query from the screen.
	EvaluateString(ctx context.Context, screen *screenstate.ScreenState, query string) (string, error)
}

// ExecContext is the runtime a tool executes against.
type ExecContext struct {
	Driver        driver.Driver
	Screen        *screenstate.ScreenState
	Memory        *Memory
	Comparator    ElementComparator
	TraceID       string
	LLMResponseID string
	Logger        *zap.Logger
}

// Interpolate expands memory placeholders in s, logging unknown names.
func (ec *ExecContext) Interpolate(s string) string {
	if ec == nil || ec.Memory == nil {
		return s
	}
	out, missing := ec.Memory.Interpolate(s)
	if len(missing) > 0 && ec.Logger != nil {
		ec.Logger.Warn("unresolved memory placeholders", zap.Strings("names", missing))
	}
	return out
}

// ContextProvider supplies the ExecContext for a run of tool executions.
type ContextProvider func() *ExecContext

// RecordableAs is implemented by tools whose executed form depends on a
// particular capture (node ids) and must be recorded in a stable form.
type RecordableAs interface {
	RecordAs(screen *screenstate.ScreenState) (Tool, bool)
}
