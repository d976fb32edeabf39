package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/mock"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/evaluate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/status"
)

// step is a scripted tool that records its own execution.
type step struct {
	Label string
	Fail  bool
	log   *[]string
}

func (s step) Name() tools.ToolName  { return "step" }
func (s step) Params() []tools.Param { return []tools.Param{{Name: "label", Value: s.Label}} }

func (s step) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	*s.log = append(*s.log, s.Label)
	if s.Fail {
		return tools.Failure(errors.New(s.Label + " failed"))
	}
	return tools.Success("%s ok", s.Label)
}

var stepDescriptor = tools.Descriptor{
	Name:   "step",
	Params: []tools.ParamSpec{{Name: "label", Type: tools.TypeString, Required: true}},
	Flags:  tools.Flags{Recordable: true},
	Decode: func(a tools.Args) (tools.Tool, error) { return step{Label: a.String("label")}, nil },
}

func newAgent(t *testing.T, d driver.Driver, opts ...agent.Option) *agent.Agent {
	t.Helper()
	repo, err := builtin.NewRepo(builtin.DefaultToolSet(), stepDescriptor)
	require.NoError(t, err)
	return agent.New(repo, d, opts...)
}

func TestRunToolsShortCircuits(t *testing.T) {
	var ran []string
	a, b, c := step{Label: "A", log: &ran}, step{Label: "B", Fail: true, log: &ran}, step{Label: "C", log: &ran}

	ag := newAgent(t, mock.New(mock.Config{}))
	executed, res := ag.RunTools(context.Background(), []tools.Tool{a, b, c}, agent.Options{})

	assert.Equal(t, []tools.Tool{a, b}, executed)
	assert.False(t, res.IsSuccess())
	assert.Equal(t, "B failed", res.Message)
	assert.Equal(t, []string{"A", "B"}, ran, "C must never run")
}

func TestRunToolsEmpty(t *testing.T) {
	ag := newAgent(t, mock.New(mock.Config{}))
	executed, res := ag.RunTools(context.Background(), nil, agent.Options{})
	assert.Empty(t, executed)
	assert.True(t, res.IsSuccess())
}

func TestRunToolsCarriesCompletionSignal(t *testing.T) {
	var ran []string
	ag := newAgent(t, mock.New(mock.Config{}))
	list := []tools.Tool{
		status.ObjectiveStatus{State: status.StateCompleted, Explanation: "done"},
		step{Label: "after", log: &ran},
	}
	executed, res := ag.RunTools(context.Background(), list, agent.Options{})
	assert.Len(t, executed, 2)
	assert.True(t, res.IsSuccess())
	assert.Equal(t, tools.SignalObjectiveComplete, res.Signal)
}

func TestRunToolsNotifiesObservers(t *testing.T) {
	var seen []string
	obs := agent.ObserverFunc(func(_ context.Context, e agent.Execution) {
		seen = append(seen, e.Tool.Name().String()+":"+string(e.Result.Status)+":"+e.LLMResponseID)
	})
	var ran []string
	ag := newAgent(t, mock.New(mock.Config{}), agent.WithObserver(obs))

	ag.RunTools(context.Background(), []tools.Tool{
		step{Label: "A", log: &ran},
		step{Label: "B", Fail: true, log: &ran},
	}, agent.Options{LLMResponseID: "resp-1"})

	assert.Equal(t, []string{"step:success:resp-1", "step:failed:resp-1"}, seen)
}

func TestRunToolsSharesMemory(t *testing.T) {
	d := mock.New(mock.Config{})
	d.SetScreen(&driver.ViewNode{Text: "42", Bounds: &driver.Bounds{Width: 10, Height: 10}})
	mem := tools.NewMemory()
	ag := newAgent(t, d, agent.WithMemory(mem))

	list := []tools.Tool{
		evaluate.RememberText{Variable: "answer", Value: "42"},
		device.AssertVisibleWithText{Text: "{{answer}}"},
	}
	_, res := ag.RunTools(context.Background(), list, agent.Options{})
	require.True(t, res.IsSuccess(), res.String())
	v, ok := mem.Get("answer")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
	assert.Equal(t, []maestro.Command{maestro.AssertVisible(maestro.Selector{Text: "42"})}, d.Executed())
}

func TestReplayIsDeterministic(t *testing.T) {
	screen := &driver.ViewNode{
		Bounds: &driver.Bounds{Width: 100, Height: 100},
		Children: []*driver.ViewNode{
			{Text: "1", Clickable: true, Enabled: true, Bounds: &driver.Bounds{Width: 10, Height: 10}},
		},
	}
	recorded := []tools.Tool{
		device.TapOnElementWithText{Text: "1"},
		device.TapOnElementWithText{Text: "missing"},
		device.PressBack{},
	}

	run := func() ([]tools.Tool, tools.Result, []maestro.Command) {
		d := mock.New(mock.Config{})
		d.SetScreen(screen)
		executed, res := newAgent(t, d).RunTools(context.Background(), recorded, agent.Options{})
		return executed, res, d.Executed()
	}

	ex1, res1, cmds1 := run()
	ex2, res2, cmds2 := run()
	assert.Equal(t, ex1, ex2)
	assert.Equal(t, res1.Status, res2.Status)
	assert.Equal(t, res1.Message, res2.Message)
	assert.Equal(t, cmds1, cmds2)
	assert.Equal(t, recorded[:2], ex1)
}

func TestNewPromptRecordingResult(t *testing.T) {
	a, b := device.PressBack{}, device.HideKeyboard{}

	ok := agent.NewPromptRecordingResult([]tools.Tool{a, b}, tools.Success("fine"))
	assert.Equal(t, agent.RecordingSuccess{Executed: []tools.Tool{a, b}}, ok)

	fail := tools.Failuref("boom")
	got := agent.NewPromptRecordingResult([]tools.Tool{a, b}, fail)
	require.IsType(t, agent.RecordingFailure{}, got)
	rf := got.(agent.RecordingFailure)
	assert.Equal(t, []tools.Tool{a}, rf.Successful)
	assert.Equal(t, b, rf.Failed)
	assert.Equal(t, []tools.Tool{a, b}, rf.Tools())
}

func TestRecordableForm(t *testing.T) {
	repo, err := builtin.NewRepo(builtin.DefaultToolSet())
	require.NoError(t, err)
	root := &driver.ViewNode{
		Bounds: &driver.Bounds{Width: 100, Height: 100},
		Children: []*driver.ViewNode{
			{Text: "Next", Clickable: true, Enabled: true, Bounds: &driver.Bounds{X: 10, Y: 10, Width: 20, Height: 20}},
		},
	}
	screen := screenstate.New(driver.DeviceInfo{Width: 100, Height: 100}, root, nil)

	got := agent.RecordableForm(repo.Codec(), screen, []tools.Tool{
		device.TapOnElementByNodeID{NodeID: 2},
		device.PressBack{},
		status.ObjectiveStatus{State: status.StateCompleted},
	})
	assert.Equal(t, []tools.Tool{device.TapOnElementWithText{Text: "Next"}, device.PressBack{}}, got)
}
