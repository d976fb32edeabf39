// Package agent executes batches of resolved tools against a device.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// Execution describes one finished tool execution.
type Execution struct {
	Tool          tools.Tool
	Result        tools.Result
	Duration      time.Duration
	TraceID       string
	LLMResponseID string
}

// Observer is notified after every tool execution, in execution order.
type Observer interface {
	ToolExecuted(ctx context.Context, e Execution)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Execution)

func (f ObserverFunc) ToolExecuted(ctx context.Context, e Execution) { f(ctx, e) }

// Options carries the per-batch context.
type Options struct {
	LLMResponseID string
	TraceID       string
	// Screen must reflect the capture immediately preceding this batch.
	Screen *screenstate.ScreenState
	// Comparator overrides the agent default for this batch.
	Comparator tools.ElementComparator
}

// Agent owns the mapping from tools to device actions for one session.
type Agent struct {
	repo       *tools.Repo
	driver     driver.Driver
	memory     *tools.Memory
	comparator tools.ElementComparator
	observers  []Observer
	logger     *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithMemory shares memory across agents, e.g. between replay and live runs.
func WithMemory(m *tools.Memory) Option {
	return func(a *Agent) { a.memory = m }
}

// WithComparator sets the default element comparator.
func WithComparator(c tools.ElementComparator) Option {
	return func(a *Agent) { a.comparator = c }
}

// WithObserver registers an execution observer.
func WithObserver(o Observer) Option {
	return func(a *Agent) { a.observers = append(a.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an agent that resolves tools through repo and acts on d.
func New(repo *tools.Repo, d driver.Driver, opts ...Option) *Agent {
	a := &Agent{repo: repo, driver: d, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.memory == nil {
		a.memory = tools.NewMemory()
	}
	a.logger = a.logger.Named("agent")
	return a
}

func (a *Agent) Repo() *tools.Repo     { return a.repo }
func (a *Agent) Driver() driver.Driver { return a.driver }
func (a *Agent) Memory() *tools.Memory { return a.memory }
func (a *Agent) Logger() *zap.Logger   { return a.logger }

// RunTools executes list strictly in order and stops at the first
// non-success result. executed includes the failing tool. The aggregate
// result of a fully successful batch is the last tool's result, carrying the
// first completion signal any tool raised.
func (a *Agent) RunTools(ctx context.Context, list []tools.Tool, opts Options) (executed []tools.Tool, result tools.Result) {
	if len(list) == 0 {
		return nil, tools.Success("no tools to run")
	}

	comparator := opts.Comparator
	if comparator == nil {
		comparator = a.comparator
	}
	exec := a.repo.Executable(func() *tools.ExecContext {
		return &tools.ExecContext{
			Driver:        a.driver,
			Screen:        opts.Screen,
			Memory:        a.memory,
			Comparator:    comparator,
			TraceID:       opts.TraceID,
			LLMResponseID: opts.LLMResponseID,
			Logger:        a.logger,
		}
	})

	executed = make([]tools.Tool, 0, len(list))
	signal := tools.SignalNone
	for _, t := range list {
		start := time.Now()
		res := exec.Run(ctx, t)
		executed = append(executed, t)
		a.notify(ctx, Execution{
			Tool:          t,
			Result:        res,
			Duration:      time.Since(start),
			TraceID:       opts.TraceID,
			LLMResponseID: opts.LLMResponseID,
		})
		if !res.IsSuccess() {
			a.logger.Debug("tool failed",
				zap.String("tool", t.Name().String()),
				zap.String("args", tools.ArgsJSON(t)),
				zap.Bool("fatal", res.Fatal),
				zap.String("message", res.Message))
			return executed, res
		}
		if signal == tools.SignalNone {
			signal = res.Signal
		}
		result = res
	}
	result.Signal = signal
	return executed, result
}

func (a *Agent) notify(ctx context.Context, e Execution) {
	for _, o := range a.observers {
		o.ToolExecuted(ctx, e)
	}
}
