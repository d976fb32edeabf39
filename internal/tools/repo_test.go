package tools_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/mock"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/status"
)

type greet struct{ Who string }

func (g greet) Name() tools.ToolName  { return "greet" }
func (g greet) Params() []tools.Param { return []tools.Param{{Name: "who", Value: g.Who}} }
func (g greet) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return tools.Success("hello %s", g.Who)
}

var greetDescriptor = tools.Descriptor{
	Name:   "greet",
	Params: []tools.ParamSpec{{Name: "who", Type: tools.TypeString, Required: true}},
	Flags:  tools.Flags{ForLLM: true, Recordable: true},
	Decode: func(a tools.Args) (tools.Tool, error) { return greet{Who: a.String("who")}, nil },
}

func newRepo(t *testing.T) *tools.Repo {
	t.Helper()
	repo, err := builtin.NewRepo(builtin.DefaultToolSet(), greetDescriptor)
	require.NoError(t, err)
	return repo
}

func names(descs []tools.Descriptor) []tools.ToolName {
	out := make([]tools.ToolName, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Name)
	}
	return out
}

func TestNewToolName(t *testing.T) {
	_, err := tools.NewToolName("  ")
	assert.ErrorIs(t, err, tools.ErrEmptyToolName)

	n, err := tools.NewToolName("tap")
	require.NoError(t, err)
	assert.Equal(t, "tap", n.String())
}

func TestRepoPartitions(t *testing.T) {
	repo := newRepo(t)

	llm := names(repo.ForLLM())
	assert.Contains(t, llm, device.TapOnElementWithTextName)
	assert.Contains(t, llm, status.ObjectiveStatusName)
	assert.Contains(t, llm, tools.ToolName("greet"))
	assert.NotContains(t, llm, device.TapOnElementWithAccessibilityTextName, "deprecated tools are hidden from the model")
	assert.NotContains(t, llm, tools.ToolName("assertEquals"), "static-only tools are hidden from the model")
	assert.True(t, sort.SliceIsSorted(llm, func(i, j int) bool { return llm[i] < llm[j] }))

	assert.Contains(t, names(repo.Static()), tools.ToolName("assertEquals"))
	assert.Equal(t, []tools.ToolName{"greet"}, names(repo.Custom()))

	_, ok := repo.Resolve(device.TapOnElementWithAccessibilityTextName)
	assert.True(t, ok, "deprecated tools stay resolvable for replay")
}

func TestRepoRejectsDuplicates(t *testing.T) {
	repo := newRepo(t)
	err := repo.RegisterCustom(greetDescriptor)
	assert.Error(t, err)
}

func TestRepoSetActive(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.SetActive([]tools.ToolName{"greet", status.ObjectiveStatusName}))
	assert.Equal(t, []tools.ToolName{"greet", status.ObjectiveStatusName}, names(repo.ForLLM()))
	assert.Len(t, repo.Schemas(), 2)

	err := repo.SetActive([]tools.ToolName{"nope"})
	assert.True(t, errors.Is(err, tools.ErrUnknownTool))

	err = repo.SetActive([]tools.ToolName{device.TapOnElementWithAccessibilityTextName})
	assert.Error(t, err)

	require.NoError(t, repo.SetActive(nil))
	assert.Greater(t, len(repo.ForLLM()), 2)
}

func TestCodecDecode(t *testing.T) {
	codec := newRepo(t).Codec()

	tool, err := codec.Decode(device.TapOnPointName, tools.Args{"x": float64(10), "y": 20})
	require.NoError(t, err)
	assert.Equal(t, device.TapOnPoint{X: 10, Y: 20}, tool)

	_, err = codec.Decode("missing", nil)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)

	_, err = codec.Decode(device.TapOnPointName, tools.Args{"x": 1})
	var verr *tools.ValidationError
	assert.ErrorAs(t, err, &verr, "missing required param")

	_, err = codec.Decode(device.InputTextName, tools.Args{"text": "a", "extra": "b"})
	assert.ErrorAs(t, err, &verr, "unknown param")

	tool, err = codec.Decode(device.EraseTextName, tools.Args{"charactersToErase": "4"})
	require.NoError(t, err, "YAML strings for integers are accepted")
	assert.Equal(t, device.EraseText{CharactersToErase: 4}, tool)

	args := tools.Args{"text": 1}
	tool, err = codec.Decode(device.TapOnElementWithTextName, args)
	require.NoError(t, err, "unquoted numbers are accepted for string params")
	assert.Equal(t, device.TapOnElementWithText{Text: "1"}, tool)
	assert.Equal(t, 1, args["text"], "caller's args are left untouched")

	tool, err = codec.Decode(device.InputTextName, tools.Args{"text": 3.25})
	require.NoError(t, err)
	assert.Equal(t, device.InputText{Text: "3.25"}, tool)

	_, err = codec.Decode(device.InputTextName, tools.Args{"text": []any{"a"}})
	assert.ErrorAs(t, err, &verr, "only scalars are coerced")
}

func TestCodecEncodeRoundTrip(t *testing.T) {
	codec := newRepo(t).Codec()
	orig := device.TapOnElementWithText{Text: "OK", Index: 1}

	name, args := codec.Encode(orig)
	back, err := codec.Decode(name, args)
	require.NoError(t, err)
	assert.Equal(t, orig, back)
	assert.Equal(t, `{"text":"OK","index":1}`, tools.ArgsJSON(orig))
}

func TestExecutorCall(t *testing.T) {
	repo := newRepo(t)
	d := mock.New(mock.Config{})
	d.SetScreen(&driver.ViewNode{Text: "Login", Bounds: &driver.Bounds{Width: 10, Height: 10}})
	mem := tools.NewMemory()
	mem.Remember("button", "Login")

	exec := repo.Executable(func() *tools.ExecContext {
		return &tools.ExecContext{Driver: d, Memory: mem}
	})

	tool, res := exec.Call(context.Background(), device.TapOnElementWithTextName, tools.Args{"text": "{{button}}"})
	require.NotNil(t, tool)
	assert.True(t, res.IsSuccess(), res.String())
	assert.Equal(t, []maestro.Command{maestro.TapOn(maestro.Selector{Text: "Login"})}, d.Executed())

	tool, res = exec.Call(context.Background(), "doesNotExist", nil)
	assert.Nil(t, tool)
	assert.False(t, res.IsSuccess())
	assert.ErrorIs(t, res.Err, tools.ErrUnknownTool)
	assert.False(t, res.Fatal, "unknown tools are recoverable")
}

func TestMemoryInterpolate(t *testing.T) {
	m := tools.NewMemory()
	m.Remember("total", "3")

	out, missing := m.Interpolate("total is {{ total }}, tax is {{tax}} and {{tax}}")
	assert.Equal(t, "total is 3, tax is {{tax}} and {{tax}}", out)
	assert.Equal(t, []string{"tax"}, missing)
}
