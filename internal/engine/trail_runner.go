package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

// RunOptions controls one trail execution.
type RunOptions struct {
	// SessionID is generated when empty.
	SessionID  string
	TestClass  string
	TestMethod string
	// UseRecordedSteps replays recordings instead of asking the model.
	UseRecordedSteps bool
}

// TrailResult is the outcome of a trail execution.
type TrailResult struct {
	SessionID string
	Status    session.Status
	Steps     []StepResult
	// Recording is the executed trail with the tools each step ran.
	Recording []trail.Item
}

// TrailRunner executes trails item by item on one device session.
type TrailRunner struct {
	runner *Runner
	events *session.Logger
	log    *zap.Logger
	now    func() time.Time
}

// NewTrailRunner creates a trail runner logging to events.
func NewTrailRunner(runner *Runner, events *session.Logger, log *zap.Logger) *TrailRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrailRunner{runner: runner, events: events, log: log.Named("trail"), now: time.Now}
}

// Run executes items in order and stops at the first failure. Every run
// ends its session with exactly one terminal status, including when a step
// panics.
func (t *TrailRunner) Run(ctx context.Context, items []trail.Item, opts RunOptions) (res TrailResult) {
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	res.SessionID = id

	a := t.runner.Agent()
	sessions := t.runner.Sessions()
	info, err := a.Driver().DeviceInfo(ctx)
	if err != nil {
		t.log.Warn("device info unavailable", zap.Error(err))
		info = driver.DeviceInfo{ID: sessions.DeviceID()}
	}
	method := opts.TestMethod
	if cfg, ok := trail.FindConfig(items); ok && method == "" {
		method = cfg.Title
	}

	sessions.StartSession(id)
	t.events.LogStatus(ctx, id, session.Started(method, opts.TestClass, info))
	start := t.now()
	ctx = WithSessionID(ctx, id)
	scope := scopeFrom(ctx)

	b := trail.NewBuilder()
	var failure string
	defer func() {
		if p := recover(); p != nil {
			t.log.Error("trail run panicked", zap.String("session", id), zap.Any("panic", p), zap.Stack("stack"))
			failure = fmt.Sprintf("panic: %v", p)
		}
		res.Status = t.finish(ctx, id, start, failure)
		res.Recording = b.Build()
	}()

	for _, it := range items {
		if t.runner.cancelled(ctx) {
			return res
		}
		switch v := it.(type) {
		case trail.ConfigItem:
			scope.trailContext = v.Context
			b.Config(v)
		case trail.MaestroItem:
			if _, r := a.RunTools(ctx, device.MaestroCommands(v.Commands), agent.Options{TraceID: id}); !r.IsSuccess() {
				failure = fmt.Sprintf("maestro: %s", r.Message)
				return res
			}
			b.Maestro(v.Commands)
		case trail.ToolsItem:
			list := v.Unwrap()
			if msg := t.runStatic(ctx, id, list); msg != "" {
				failure = msg
				return res
			}
			b.Tools(list)
		case trail.PromptsItem:
			for _, step := range v.Steps {
				sr := t.runner.Run(ctx, step, opts.UseRecordedSteps)
				res.Steps = append(res.Steps, sr)
				recorded := trail.PromptStep{Kind: step.Kind, Text: step.Text, Recordable: step.Recordable}
				if o := sr.Status.Outcome(); o.State == StateFailure {
					b.Step(recorded)
					failure = o.String()
					return res
				}
				if step.Recordable {
					recorded.Recording = &trail.Recording{Tools: trail.WrapAll(sr.Recorded)}
				}
				b.Step(recorded)
			}
		default:
			failure = fmt.Sprintf("unsupported trail item %T", it)
			return res
		}
	}
	return res
}

func (t *TrailRunner) runStatic(ctx context.Context, id string, list []tools.Tool) string {
	a := t.runner.Agent()
	screen, err := screenstate.Capture(ctx, a.Driver(), t.runner.captureOptions())
	if err != nil {
		return fmt.Sprintf("capture screen: %v", err)
	}
	_, r := a.RunTools(ctx, list, agent.Options{TraceID: id, Screen: screen})
	if !r.IsSuccess() {
		return fmt.Sprintf("tools: %s", r.Message)
	}
	if r.Signal == tools.SignalObjectiveFailed {
		return fmt.Sprintf("tools: objective failed: %s", r.Message)
	}
	return ""
}

// finish picks the terminal status: cancellation wins over an exhausted
// call budget, which wins over any other failure.
func (t *TrailRunner) finish(ctx context.Context, id string, start time.Time, failure string) session.Status {
	sessions := t.runner.Sessions()
	d := t.now().Sub(start)

	var st session.Status
	info, maxed := sessions.MaxCallsLimit()
	switch {
	case sessions.IsCurrentSessionCancelled() || ctx.Err() != nil:
		st = session.Cancelled(d, "session cancelled")
	case maxed:
		st = session.MaxCallsLimitReached(d, info)
	case failure != "":
		st = session.Failed(d, failure)
	default:
		st = session.Succeeded(d)
	}

	// Sinks must see the final status even when ctx is cancelled.
	if _, logged := t.events.EndSession(context.WithoutCancel(ctx), id, st); !logged {
		t.log.Debug("session already ended", zap.String("session", id))
	}
	sessions.EndSessionIf(id)
	return st
}
