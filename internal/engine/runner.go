package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/prompts"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/status"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

const (
	emptyToolCallMessage = "Error: EmptyToolCall. Your response did not call any tool. " +
		"Respond with at least one tool call; use objectiveStatus to report progress."
	skippedToolMessage = "skipped: an earlier tool call in this response failed"
	screenInstruction  = "This is the current screen. Call the next tool."
)

// StepResult is the outcome of one prompt step.
type StepResult struct {
	Status *PromptStepStatus
	// Recorded is the recordable form of every tool that succeeded, in order.
	Recorded []tools.Tool
	Replayed bool
	// SelfHealed is set when a failed replay was finished by the model.
	SelfHealed bool
}

// Runner drives prompt steps for one device session.
type Runner struct {
	llm      LLMClient
	agent    *agent.Agent
	sessions *session.Manager
	renderer *prompts.Renderer
	hooks    Hooks
	cfg      RunnerConfig
	log      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithHooks appends step hooks.
func WithHooks(hs ...Hook) RunnerOption {
	return func(r *Runner) { r.hooks = append(r.hooks, hs...) }
}

// WithRenderer replaces the prompt renderer.
func WithRenderer(p *prompts.Renderer) RunnerOption {
	return func(r *Runner) { r.renderer = p }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a runner that asks llm for tools and executes them
// through a.
func NewRunner(llm LLMClient, a *agent.Agent, sessions *session.Manager, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		llm:      llm,
		agent:    a,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.renderer == nil {
		r.renderer = prompts.NewRenderer(nil)
	}
	r.log = r.log.Named("runner")
	return r
}

func (r *Runner) Agent() *agent.Agent        { return r.agent }
func (r *Runner) Sessions() *session.Manager { return r.sessions }
func (r *Runner) Config() RunnerConfig       { return r.cfg }

// Run executes step, replaying its recording when useRecorded is set and
// one exists.
func (r *Runner) Run(ctx context.Context, step trail.PromptStep, useRecorded bool) StepResult {
	if useRecorded && step.Recording != nil {
		return r.ReplayStep(ctx, step)
	}
	return r.RunStep(ctx, step)
}

// RunStep drives step with the model until it reaches a terminal outcome.
func (r *Runner) RunStep(ctx context.Context, step trail.PromptStep) StepResult {
	st := NewPromptStepStatus(step.Text, r.cfg.HistoryWindow)
	r.hooks.OnStepStart(ctx, st)
	res := r.loop(ctx, st, step, nil)
	r.hooks.OnStepDone(ctx, st)
	return res
}

// ReplayStep runs the step's recorded tools without the model. Each tool
// sees a fresh capture. A tool that fails ends the step with a
// ReplayMismatchError, or hands over to the model when SelfHeal is set.
func (r *Runner) ReplayStep(ctx context.Context, step trail.PromptStep) StepResult {
	st := NewPromptStepStatus(step.Text, r.cfg.HistoryWindow)
	r.hooks.OnStepStart(ctx, st)
	defer r.hooks.OnStepDone(ctx, st)

	out := StepResult{Status: st, Replayed: true}
	recorded := step.Recorded()
	if r.cancelled(ctx) {
		st.Transition(r.cancelledOutcome(ctx))
		return out
	}
	if len(recorded) == 0 {
		st.Transition(ObjectiveComplete("nothing recorded"))
		return out
	}

	var executed []tools.Tool
	for _, t := range recorded {
		if r.cancelled(ctx) {
			st.Transition(r.cancelledOutcome(ctx))
			return out
		}
		screen, err := screenstate.Capture(ctx, r.agent.Driver(), r.captureOptions())
		if err != nil {
			st.Transition(r.captureFailure(ctx, err))
			return out
		}
		ran, res := r.agent.RunTools(ctx, []tools.Tool{t}, agent.Options{TraceID: st.TaskID(), Screen: screen})
		executed = append(executed, ran...)
		if !res.IsSuccess() {
			return r.replayFailed(ctx, st, step, executed, res)
		}
		if res.Signal == tools.SignalObjectiveFailed {
			st.Transition(Failure(ReasonObjectiveFailed, res.Message, nil))
			return out
		}
	}
	out.Recorded = recorded
	st.Transition(ObjectiveComplete(fmt.Sprintf("replayed %d tools", len(recorded))))
	return out
}

func (r *Runner) replayFailed(ctx context.Context, st *PromptStepStatus, step trail.PromptStep, executed []tools.Tool, res tools.Result) StepResult {
	rec := agent.NewPromptRecordingResult(executed, res)
	failure, _ := rec.(agent.RecordingFailure)

	if r.cfg.SelfHeal && !res.Fatal {
		r.log.Info("replay failed, continuing with the model",
			zap.String("prompt", step.Text),
			zap.Int("replayed", len(failure.Successful)),
			zap.String("message", res.Message))
		live := r.loop(ctx, st, step, ReconstructHistory(rec))
		live.Recorded = append(append([]tools.Tool(nil), failure.Successful...), live.Recorded...)
		live.SelfHealed = true
		return live
	}

	reason := ReasonObjectiveFailed
	if res.Fatal {
		reason = ReasonToolExecutionException
	}
	st.Transition(Failure(reason, "", &ReplayMismatchError{
		Prompt:     step.Text,
		Successful: failure.Successful,
		Failed:     failure.Failed,
		Result:     res,
	}))
	return StepResult{Status: st, Replayed: true, Recorded: failure.Successful}
}

// loop is the model-driven part of a step. seed is prepended to the history.
func (r *Runner) loop(ctx context.Context, st *PromptStepStatus, step trail.PromptStep, seed []ChatMessage) StepResult {
	out := StepResult{Status: st}
	st.AddTurn(seed...)

	text, missing := r.agent.Memory().Interpolate(step.Text)
	if len(missing) > 0 {
		r.log.Warn("unresolved memory placeholders in prompt", zap.Strings("names", missing))
	}
	system, err := r.renderer.System(r.platform(ctx), trailContextFrom(ctx))
	if err == nil {
		text, err = r.renderer.Objective(text, step.Kind == trail.KindVerify)
	}
	if err != nil {
		st.Transition(Failure(ReasonObjectiveFailed, "", fmt.Errorf("render prompt: %w", err)))
		return out
	}
	codec := r.agent.Repo().Codec()

	for !st.IsFinished() {
		// Checkpoints run between turns only; a turn in flight always
		// completes.
		if r.cancelled(ctx) {
			st.Transition(r.cancelledOutcome(ctx))
			break
		}
		if st.CallCount() >= r.cfg.MaxCalls {
			r.sessions.MarkMaxCallsLimitReached(r.cfg.MaxCalls, step.Text)
			st.Transition(Failure(ReasonMaxCallsReached, "", &MaxCallsReachedError{MaxCalls: r.cfg.MaxCalls, Prompt: step.Text}))
			break
		}

		screen, err := screenstate.Capture(ctx, r.agent.Driver(), r.captureOptions())
		if err != nil {
			st.Transition(r.captureFailure(ctx, err))
			break
		}

		messages := r.buildMessages(system, text, st, screen)
		schemas := SchemasFrom(r.agent.Repo())
		r.hooks.OnBeforeLLM(ctx, st, messages, schemas)
		start := time.Now()
		resp, err := RetryLLMCall(ctx, r.cfg.Retry, r.llm, r.cfg.Model, messages, schemas, r.cfg.Chat,
			func(attempt int, delay time.Duration, err error) {
				r.hooks.OnRetryAttempt(ctx, st, attempt, delay, err)
			})
		r.hooks.OnAfterLLM(ctx, st, resp, time.Since(start), err)
		if err != nil {
			if r.cancelled(ctx) {
				st.Transition(r.cancelledOutcome(ctx))
			} else {
				st.Transition(Failure(ReasonObjectiveFailed, "", fmt.Errorf("llm call: %w", err)))
			}
			break
		}
		st.IncrementCalls()

		if len(resp.ToolCalls) == 0 {
			st.AddTurn(assistantMessage(resp), ChatMessage{Role: RoleUser, Content: emptyToolCallMessage})
			r.log.Debug("empty tool call", zap.String("task", st.TaskID()), zap.Int("call", st.CallCount()))
			continue
		}
		out.Recorded = append(out.Recorded, r.executeCalls(ctx, st, resp, screen, codec)...)
	}
	return out
}

// executeCalls decodes and runs one response's tool calls, records the turn
// and applies any terminal signal. It returns the recordable tools.
func (r *Runner) executeCalls(ctx context.Context, st *PromptStepStatus, resp LLMResponse, screen *screenstate.ScreenState, codec *tools.Codec) []tools.Tool {
	decoded := make([]tools.Tool, 0, len(resp.ToolCalls))
	var decodeErr error
	for _, call := range resp.ToolCalls {
		t, err := decodeCall(codec, call)
		if err != nil {
			decodeErr = err
			break
		}
		decoded = append(decoded, t)
	}

	executed, result := r.agent.RunTools(ctx, decoded, agent.Options{
		LLMResponseID: resp.ID,
		TraceID:       st.TaskID(),
		Screen:        screen,
	})

	successful := executed
	if !result.IsSuccess() {
		successful = executed[:len(executed)-1]
	}

	turn := []ChatMessage{assistantMessage(resp)}
	for i, call := range resp.ToolCalls {
		var content string
		switch {
		case i < len(successful):
			content = toolResultContent(executed[i], tools.Result{Status: tools.StatusSuccess})
		case i < len(executed):
			content = toolResultContent(executed[i], result)
		case i == len(decoded) && decodeErr != nil:
			content = fmt.Sprintf("failed: invalid tool call %s: %v", call.Name, decodeErr)
		default:
			content = skippedToolMessage
		}
		turn = append(turn, ChatMessage{Role: RoleTool, Name: call.Name, ToolCallID: call.ID, Content: content})
	}
	st.AddTurn(turn...)

	switch {
	case !result.IsSuccess() && result.Fatal:
		failed := executed[len(executed)-1]
		st.Transition(Failure(ReasonToolExecutionException, "", &ToolExecutionError{
			Tool:   failed.Name(),
			Args:   tools.ArgsJSON(failed),
			Result: result,
		}))
	case result.IsSuccess() && result.Signal == tools.SignalObjectiveComplete:
		st.Transition(ObjectiveComplete(explanation(successful, result)))
	case result.IsSuccess() && result.Signal == tools.SignalObjectiveFailed:
		st.Transition(Failure(ReasonObjectiveFailed, explanation(successful, result), nil))
	}

	return agent.RecordableForm(codec, screen, successful)
}

func decodeCall(codec *tools.Codec, call ToolCall) (tools.Tool, error) {
	if call.Error != "" {
		return nil, errors.New(call.Error)
	}
	name, err := tools.NewToolName(call.Name)
	if err != nil {
		return nil, err
	}
	return codec.Decode(name, tools.Args(call.Args))
}

// explanation prefers what the model wrote in objectiveStatus.
func explanation(executed []tools.Tool, result tools.Result) string {
	for i := len(executed) - 1; i >= 0; i-- {
		if s, ok := executed[i].(status.ObjectiveStatus); ok && s.State != status.StateInProgress {
			return s.Explanation
		}
	}
	return result.Message
}

func assistantMessage(resp LLMResponse) ChatMessage {
	msg := resp.Assistant
	msg.Role = RoleAssistant
	msg.ToolCalls = resp.ToolCalls
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		msg.Content = "(no tool call)"
	}
	return msg
}

// buildMessages assembles system prompt, objective, the recent window and
// the current screen. On the first turn objective and screen share one
// message.
func (r *Runner) buildMessages(system, objective string, st *PromptStepStatus, screen *screenstate.ScreenState) []ChatMessage {
	msgs := []ChatMessage{{Role: RoleSystem, Content: system}}
	recent := st.Recent()
	if len(recent) == 0 {
		return append(msgs, userScreenMessage(r.renderer, screen, objective+"\n\n"+screenInstruction))
	}
	msgs = append(msgs, ChatMessage{Role: RoleUser, Content: objective})
	msgs = append(msgs, recent...)
	return append(msgs, userScreenMessage(r.renderer, screen, screenInstruction))
}

func (r *Runner) cancelled(ctx context.Context) bool {
	return r.sessions.IsCurrentSessionCancelled() || ctx.Err() != nil
}

func (r *Runner) cancelledOutcome(ctx context.Context) Outcome {
	id, ok := SessionIDFrom(ctx)
	if !ok {
		id, _ = r.sessions.CurrentSessionID()
	}
	return Failure(ReasonSessionCancelled, "", &SessionCancelledError{SessionID: id})
}

func (r *Runner) captureFailure(ctx context.Context, err error) Outcome {
	if r.cancelled(ctx) {
		return r.cancelledOutcome(ctx)
	}
	return Failure(ReasonToolExecutionException, "", fmt.Errorf("capture screen: %w", err))
}

func (r *Runner) captureOptions() screenstate.Options {
	opts := r.cfg.captureOptions()
	opts.Logger = r.log
	return opts
}

func (r *Runner) platform(ctx context.Context) string {
	info, err := r.agent.Driver().DeviceInfo(ctx)
	if err != nil || info.Platform == "" {
		return "mobile"
	}
	return string(info.Platform)
}
