package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/mock"
	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

// scriptedLLM answers each Chat call with the next scripted response.
type scriptedLLM struct {
	mu       sync.Mutex
	requests [][]engine.ChatMessage
	script   func(call int, msgs []engine.ChatMessage) (engine.LLMResponse, error)
}

func (s *scriptedLLM) Chat(ctx context.Context, model string, msgs []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, msgs)
	n := len(s.requests)
	s.mu.Unlock()
	return s.script(n, msgs)
}

func (s *scriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// turns returns a script playing responses in order, repeating the last.
func turns(rs ...[]engine.ToolCall) func(int, []engine.ChatMessage) (engine.LLMResponse, error) {
	return func(call int, _ []engine.ChatMessage) (engine.LLMResponse, error) {
		i := call - 1
		if i >= len(rs) {
			i = len(rs) - 1
		}
		return engine.LLMResponse{ID: fmt.Sprintf("resp_%d", call), ToolCalls: rs[i], FinishReason: "tool_calls"}, nil
	}
}

func call(name string, args map[string]any) engine.ToolCall {
	return engine.ToolCall{ID: "call_" + name, Name: name, Args: args}
}

func tap(text string) engine.ToolCall {
	return call("tapOnElementWithText", map[string]any{"text": text})
}

func objective(state, why string) engine.ToolCall {
	return call("objectiveStatus", map[string]any{"status": state, "explanation": why})
}

// calculator is a mock app: a display and the buttons 1, 2, + and =.
type calculator struct {
	mu   sync.Mutex
	expr string
}

func calculatorScreen(display string) *driver.ViewNode {
	root := &driver.ViewNode{
		ClassName: "android.widget.FrameLayout",
		Enabled:   true,
		Bounds:    &driver.Bounds{Width: 1080, Height: 1920},
		Children: []*driver.ViewNode{{
			ResourceID: "display",
			ClassName:  "android.widget.TextView",
			Text:       display,
			Enabled:    true,
			Bounds:     &driver.Bounds{Width: 1080, Height: 400},
		}},
	}
	for i, label := range []string{"1", "2", "+", "="} {
		root.Children = append(root.Children, &driver.ViewNode{
			ClassName: "android.widget.Button",
			Text:      label,
			Clickable: true,
			Enabled:   true,
			Bounds:    &driver.Bounds{X: i * 270, Y: 1200, Width: 270, Height: 270},
		})
	}
	return root
}

func (c *calculator) execute(d *mock.Driver, cmd maestro.Command) (driver.Result, bool) {
	if cmd.Type != maestro.CmdTapOn {
		return driver.Result{}, false
	}
	matches := d.Screen().Find(cmd.Selector)
	if len(matches) == 0 || !matches[0].Clickable {
		return driver.Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	label := matches[0].Text
	display := ""
	if label == "=" {
		sum := 0
		for _, part := range strings.Split(c.expr, "+") {
			n, _ := strconv.Atoi(part)
			sum += n
		}
		c.expr = strconv.Itoa(sum)
		display = c.expr
	} else {
		c.expr += label
		display = c.expr
	}
	d.SetScreen(calculatorScreen(display))
	return driver.Result{Success: true, Message: "tapped " + label}, true
}

type harness struct {
	driver   *mock.Driver
	llm      *scriptedLLM
	sessions *session.Manager
	hub      *session.Hub
	events   *session.Logger
	runner   *engine.Runner
	trails   *engine.TrailRunner
	codec    *tools.Codec
}

func newHarness(t *testing.T, cfg engine.RunnerConfig, script func(int, []engine.ChatMessage) (engine.LLMResponse, error), mcfg mock.Config) *harness {
	t.Helper()
	calc := &calculator{}
	if mcfg.OnExecute == nil {
		mcfg.OnExecute = calc.execute
	}
	d := mock.New(mcfg)
	d.SetScreen(calculatorScreen("0"))

	repo, err := builtin.NewRepo(builtin.DefaultToolSet())
	require.NoError(t, err)

	h := &harness{driver: d, llm: &scriptedLLM{script: script}, sessions: session.NewManager("mock-device"), hub: session.NewHub(0), codec: repo.Codec()}
	h.events = session.NewLogger(zap.NewNop(), h.hub)
	hook := engine.SessionHook{Log: h.events, Sessions: h.sessions, Model: "scripted"}
	a := agent.New(repo, d, agent.WithObserver(hook))
	cfg.CaptureBackoff = func(int) time.Duration { return 0 }
	h.runner = engine.NewRunner(h.llm, a, h.sessions, cfg, engine.WithHooks(hook))
	h.trails = engine.NewTrailRunner(h.runner, h.events, zap.NewNop())
	return h
}

func (h *harness) eventKinds(id string) []session.EventKind {
	var out []session.EventKind
	for _, e := range h.hub.Events(id, 0) {
		out = append(out, e.Kind)
	}
	return out
}

func (h *harness) statuses(id string) []session.StatusKind {
	var out []session.StatusKind
	for _, e := range h.hub.Events(id, 0) {
		if e.Kind == session.EventStatus {
			out = append(out, e.Status.Kind)
		}
	}
	return out
}

func calculatorTrail(expected string) []trail.Item {
	return trail.NewBuilder().
		Config(trail.ConfigItem{ID: "calc", Title: "adds numbers", Context: "A basic calculator."}).
		Maestro([]maestro.Command{maestro.LaunchApp("com.example.calc", false)}).
		Prompt("calculate 1+2", true, nil).
		Verify("the result is "+expected, true, nil).
		Build()
}

// calculatorScript taps 1 + 2 =, completes, then checks the display for
// the expected value.
func calculatorScript(expected string) func(int, []engine.ChatMessage) (engine.LLMResponse, error) {
	return turns(
		[]engine.ToolCall{tap("1"), tap("+"), tap("2"), tap("=")},
		[]engine.ToolCall{objective("completed", "display shows the sum")},
		[]engine.ToolCall{call("assertVisibleWithText", map[string]any{"text": expected})},
		[]engine.ToolCall{objective("completed", "checked")},
	)
}

func TestCalculatorSucceeds(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 10}, calculatorScript("3"), mock.Config{})

	res := h.trails.Run(context.Background(), calculatorTrail("3"), engine.RunOptions{SessionID: "calc-ok", TestClass: "CalculatorTest"})

	assert.Equal(t, session.StatusSucceeded, res.Status.Kind)
	require.Len(t, res.Steps, 2)
	for _, s := range res.Steps {
		assert.Equal(t, engine.StateSuccess, s.Status.Outcome().State)
	}
	assert.Equal(t, 2, res.Steps[0].Status.CallCount())
	assert.Equal(t, "3", h.driver.Screen().Children[0].Text)
	assert.Equal(t, 4, h.llm.Calls())

	assert.Equal(t, []session.StatusKind{session.StatusStarted, session.StatusSucceeded}, h.statuses("calc-ok"))
	kinds := h.eventKinds("calc-ok")
	assert.Equal(t, session.EventStatus, kinds[0])
	assert.Contains(t, kinds, session.EventLLMRequest)
	assert.Contains(t, kinds, session.EventTool)
	assert.Equal(t, session.EventStatus, kinds[len(kinds)-1])

	// The recording holds the stable tools only.
	prompts := res.Recording[2].(trail.PromptsItem)
	require.Len(t, prompts.Steps, 2)
	assert.Equal(t, []tools.Tool{
		device.TapOnElementWithText{Text: "1"},
		device.TapOnElementWithText{Text: "+"},
		device.TapOnElementWithText{Text: "2"},
		device.TapOnElementWithText{Text: "="},
	}, prompts.Steps[0].Recorded())
	assert.Equal(t, []tools.Tool{device.AssertVisibleWithText{Text: "3"}}, prompts.Steps[1].Recorded())

	_, ok := h.sessions.CurrentSessionID()
	assert.False(t, ok)
}

func TestCalculatorWrongResultFails(t *testing.T) {
	script := turns(
		[]engine.ToolCall{tap("1"), tap("+"), tap("2"), tap("=")},
		[]engine.ToolCall{objective("completed", "done")},
		[]engine.ToolCall{call("assertVisibleWithText", map[string]any{"text": "4"})},
		[]engine.ToolCall{objective("failed", "the display shows 3")},
	)
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 10}, script, mock.Config{})

	res := h.trails.Run(context.Background(), calculatorTrail("4"), engine.RunOptions{SessionID: "calc-4"})

	assert.Equal(t, session.StatusFailed, res.Status.Kind)
	assert.Contains(t, res.Status.Message, "the display shows 3")
	require.Len(t, res.Steps, 2)
	verify := res.Steps[1].Status
	assert.Equal(t, engine.ReasonObjectiveFailed, verify.Outcome().Reason)
	assert.Equal(t, 2, verify.CallCount())

	// The failed assertion was fed back to the model, not treated as fatal.
	history := verify.History()
	var fedBack bool
	for _, m := range history {
		if m.Role == engine.RoleTool && strings.HasPrefix(m.Content, "failed:") {
			fedBack = true
		}
	}
	assert.True(t, fedBack)
	assert.Equal(t, []session.StatusKind{session.StatusStarted, session.StatusFailed}, h.statuses("calc-4"))
}

func TestMaxCallsLimit(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 1}, turns([]engine.ToolCall{tap("1")}), mock.Config{})

	res := h.trails.Run(context.Background(), calculatorTrail("3"), engine.RunOptions{SessionID: "max"})

	assert.Equal(t, 1, h.llm.Calls())
	require.Len(t, res.Steps, 1)
	st := res.Steps[0].Status
	assert.Equal(t, engine.ReasonMaxCallsReached, st.Outcome().Reason)
	var maxErr *engine.MaxCallsReachedError
	require.ErrorAs(t, st.Outcome().Err, &maxErr)
	assert.Equal(t, 1, maxErr.MaxCalls)

	assert.Equal(t, session.StatusMaxCallsLimitReached, res.Status.Kind)
	assert.Equal(t, 1, res.Status.MaxCalls)
	assert.Equal(t, "calculate 1+2", res.Status.Prompt)
	assert.Equal(t, []session.StatusKind{session.StatusStarted, session.StatusMaxCallsLimitReached}, h.statuses("max"))
}

func TestCancelBetweenTurns(t *testing.T) {
	var h *harness
	script := func(call int, _ []engine.ChatMessage) (engine.LLMResponse, error) {
		if call == 1 {
			h.sessions.CancelCurrentSession()
		}
		return engine.LLMResponse{ID: "r", ToolCalls: []engine.ToolCall{tap("1")}}, nil
	}
	h = newHarness(t, engine.RunnerConfig{MaxCalls: 10}, script, mock.Config{})

	res := h.trails.Run(context.Background(), calculatorTrail("3"), engine.RunOptions{SessionID: "cancel"})

	// The turn in flight completes; the next checkpoint stops the step.
	assert.Equal(t, 1, h.llm.Calls())
	assert.Equal(t, "1", h.driver.Screen().Children[0].Text)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, engine.ReasonSessionCancelled, res.Steps[0].Status.Outcome().Reason)
	assert.Equal(t, session.StatusCancelled, res.Status.Kind)
	assert.Equal(t, []session.StatusKind{session.StatusStarted, session.StatusCancelled}, h.statuses("cancel"))
}

func TestEmptyToolCallCountsAndContinues(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 5}, turns(nil, []engine.ToolCall{objective("completed", "ok")}), mock.Config{})

	res := h.runner.RunStep(context.Background(), trail.PromptStep{Kind: trail.KindStep, Text: "look around"})

	assert.Equal(t, engine.StateSuccess, res.Status.Outcome().State)
	assert.Equal(t, 2, res.Status.CallCount())
	history := res.Status.History()
	require.NotEmpty(t, history)
	assert.Contains(t, history[1].Content, "EmptyToolCall")

	// The second request carries the error back to the model.
	second := h.llm.requests[1]
	var sawError bool
	for _, m := range second {
		if strings.Contains(m.Content, "EmptyToolCall") {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestUnknownToolIsFedBack(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 5}, turns(
		[]engine.ToolCall{call("flyAway", nil), tap("1")},
		[]engine.ToolCall{objective("completed", "ok")},
	), mock.Config{})

	res := h.runner.RunStep(context.Background(), trail.PromptStep{Kind: trail.KindStep, Text: "tap one"})

	assert.Equal(t, engine.StateSuccess, res.Status.Outcome().State)
	// Nothing after the bad call ran.
	assert.Empty(t, h.driver.Executed())
	history := res.Status.History()
	require.Len(t, history, 5)
	assert.Contains(t, history[1].Content, "unknown tool")
	assert.Equal(t, "skipped: an earlier tool call in this response failed", history[2].Content)
}

func TestFatalToolFailure(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 5}, turns([]engine.ToolCall{tap("1"), tap("2")}), mock.Config{FailTransport: true})

	res := h.runner.RunStep(context.Background(), trail.PromptStep{Kind: trail.KindStep, Text: "tap"})

	o := res.Status.Outcome()
	assert.Equal(t, engine.ReasonToolExecutionException, o.Reason)
	var execErr *engine.ToolExecutionError
	require.ErrorAs(t, o.Err, &execErr)
	assert.Equal(t, device.TapOnElementWithTextName, execErr.Tool)
	assert.ErrorIs(t, o.Err, mock.ErrTransport)
	assert.Len(t, h.driver.Executed(), 1)
}

func TestLLMErrorFailsStep(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 5}, func(int, []engine.ChatMessage) (engine.LLMResponse, error) {
		return engine.LLMResponse{}, errors.New("401 unauthorized")
	}, mock.Config{})

	res := h.runner.RunStep(context.Background(), trail.PromptStep{Kind: trail.KindStep, Text: "tap"})

	o := res.Status.Outcome()
	assert.Equal(t, engine.ReasonObjectiveFailed, o.Reason)
	assert.Contains(t, o.Explanation, "401")
	assert.Equal(t, 0, res.Status.CallCount())
}

func TestReplayIsDeterministic(t *testing.T) {
	never := func(int, []engine.ChatMessage) (engine.LLMResponse, error) {
		return engine.LLMResponse{}, errors.New("model must not be called during replay")
	}
	items := trail.NewBuilder().
		Prompt("calculate 1+2", true, []tools.Tool{
			device.TapOnElementWithText{Text: "1"},
			device.TapOnElementWithText{Text: "+"},
			device.TapOnElementWithText{Text: "2"},
			device.TapOnElementWithText{Text: "="},
		}).
		Verify("the result is 3", true, []tools.Tool{device.AssertVisibleWithText{Text: "3"}}).
		Build()

	var runs [][]maestro.Command
	for i := 0; i < 2; i++ {
		h := newHarness(t, engine.RunnerConfig{}, never, mock.Config{})
		res := h.trails.Run(context.Background(), items, engine.RunOptions{UseRecordedSteps: true})
		require.Equal(t, session.StatusSucceeded, res.Status.Kind, res.Status.Message)
		assert.Zero(t, h.llm.Calls())
		for _, s := range res.Steps {
			assert.True(t, s.Replayed)
		}
		runs = append(runs, h.driver.Executed())
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Len(t, runs[0], 5)
}

func TestReplayWithoutRecordingSucceeds(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{}, turns(nil), mock.Config{})
	step := trail.PromptStep{Kind: trail.KindStep, Text: "nothing", Recording: &trail.Recording{Tools: []trail.ToolWrapper{}}}

	res := h.runner.Run(context.Background(), step, true)

	assert.Equal(t, engine.StateSuccess, res.Status.Outcome().State)
	assert.Zero(t, h.llm.Calls())
	assert.Empty(t, h.driver.Executed())
}

func TestReplayMismatch(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{}, turns(nil), mock.Config{})
	step := trail.PromptStep{Kind: trail.KindStep, Text: "calculate", Recording: &trail.Recording{Tools: trail.WrapAll([]tools.Tool{
		device.TapOnElementWithText{Text: "1"},
		device.TapOnElementWithText{Text: "9"},
		device.TapOnElementWithText{Text: "="},
	})}}

	res := h.runner.ReplayStep(context.Background(), step)

	o := res.Status.Outcome()
	require.Equal(t, engine.StateFailure, o.State)
	var mismatch *engine.ReplayMismatchError
	require.ErrorAs(t, o.Err, &mismatch)
	assert.Equal(t, device.TapOnElementWithText{Text: "9"}, mismatch.Failed)
	assert.Equal(t, []tools.Tool{device.TapOnElementWithText{Text: "1"}}, mismatch.Successful)
	assert.Len(t, h.driver.Executed(), 2)
	assert.Zero(t, h.llm.Calls())
}

func TestReplaySelfHeals(t *testing.T) {
	script := turns(
		[]engine.ToolCall{tap("2"), tap("=")},
		[]engine.ToolCall{objective("completed", "healed")},
	)
	h := newHarness(t, engine.RunnerConfig{SelfHeal: true, MaxCalls: 5}, script, mock.Config{})
	step := trail.PromptStep{Kind: trail.KindStep, Text: "calculate 1+2", Recording: &trail.Recording{Tools: trail.WrapAll([]tools.Tool{
		device.TapOnElementWithText{Text: "1"},
		device.TapOnElementWithText{Text: "+"},
		device.TapOnElementWithText{Text: "two"},
	})}}

	res := h.runner.Run(context.Background(), step, true)

	require.Equal(t, engine.StateSuccess, res.Status.Outcome().State)
	assert.True(t, res.SelfHealed)
	assert.Equal(t, "3", h.driver.Screen().Children[0].Text)
	assert.Equal(t, []tools.Tool{
		device.TapOnElementWithText{Text: "1"},
		device.TapOnElementWithText{Text: "+"},
		device.TapOnElementWithText{Text: "2"},
		device.TapOnElementWithText{Text: "="},
	}, res.Recorded)

	// The first request replays the recorded calls as history.
	first := h.llm.requests[0]
	var replayed int
	for _, m := range first {
		if m.Role == engine.RoleTool && strings.HasPrefix(m.ToolCallID, "replay_") {
			replayed++
		}
	}
	assert.Equal(t, 3, replayed)
}

func TestCancelledBeforeReplay(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{}, turns(nil), mock.Config{})
	h.sessions.StartSession("s")
	h.sessions.CancelCurrentSession()
	step := trail.PromptStep{Kind: trail.KindStep, Text: "tap", Recording: &trail.Recording{Tools: trail.WrapAll([]tools.Tool{device.TapOnElementWithText{Text: "1"}})}}

	res := h.runner.ReplayStep(context.Background(), step)

	assert.Equal(t, engine.ReasonSessionCancelled, res.Status.Outcome().Reason)
	assert.Empty(t, h.driver.Executed())
}

func TestStaticToolFailureEndsSession(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{}, turns(nil), mock.Config{})
	items := trail.NewBuilder().
		Tools([]tools.Tool{device.TapOnElementWithText{Text: "1"}, device.AssertVisibleWithText{Text: "42"}}).
		Prompt("never reached", true, nil).
		Build()

	res := h.trails.Run(context.Background(), items, engine.RunOptions{SessionID: "static"})

	assert.Equal(t, session.StatusFailed, res.Status.Kind)
	assert.Empty(t, res.Steps)
	assert.Zero(t, h.llm.Calls())
	assert.Equal(t, []session.StatusKind{session.StatusStarted, session.StatusFailed}, h.statuses("static"))
}

func TestEventsCarryTheRunsSessionID(t *testing.T) {
	var h *harness
	script := calculatorScript("3")
	h = newHarness(t, engine.RunnerConfig{MaxCalls: 10}, func(call int, msgs []engine.ChatMessage) (engine.LLMResponse, error) {
		if call == 1 {
			// A successor takes the device while this run is still going.
			h.sessions.StartSession("successor")
		}
		return script(call, msgs)
	}, mock.Config{})

	res := h.trails.Run(context.Background(), calculatorTrail("3"), engine.RunOptions{SessionID: "first"})
	assert.Equal(t, session.StatusSucceeded, res.Status.Kind)

	assert.Empty(t, h.hub.Events("successor", 0))
	kinds := h.eventKinds("first")
	assert.Contains(t, kinds, session.EventLLMResponse)
	assert.Contains(t, kinds, session.EventTool)

	id, ok := h.sessions.CurrentSessionID()
	require.True(t, ok)
	assert.Equal(t, "successor", id, "the finished run leaves its successor current")
}

func TestTrailContextIsScopedToTheRun(t *testing.T) {
	h := newHarness(t, engine.RunnerConfig{MaxCalls: 10}, calculatorScript("3"), mock.Config{})

	h.trails.Run(context.Background(), calculatorTrail("3"), engine.RunOptions{SessionID: "with-context"})
	require.NotEmpty(t, h.llm.requests)
	assert.Contains(t, h.llm.requests[0][0].Content, "A basic calculator.")

	// A direct step outside any trail run has no app context.
	h.runner.RunStep(context.Background(), trail.PromptStep{Kind: trail.KindStep, Text: "calculate 1+2"})
	last := h.llm.requests[len(h.llm.requests)-1]
	assert.NotContains(t, last[0].Content, "A basic calculator.")

	id, ok := engine.SessionIDFrom(engine.WithSessionID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
	_, ok = engine.SessionIDFrom(context.Background())
	assert.False(t, ok)
}
