package evaluate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/evaluate"
)

// fakeComparator answers from fixed values and records what it was asked.
type fakeComparator struct {
	verdict bool
	reason  string
	value   string
	err     error
	asked   []string
}

func (f *fakeComparator) EvaluateBoolean(_ context.Context, _ *screenstate.ScreenState, statement string) (bool, string, error) {
	f.asked = append(f.asked, statement)
	return f.verdict, f.reason, f.err
}

func (f *fakeComparator) EvaluateString(_ context.Context, _ *screenstate.ScreenState, query string) (string, error) {
	f.asked = append(f.asked, query)
	return f.value, f.err
}

func newContext(c tools.ElementComparator) *tools.ExecContext {
	return &tools.ExecContext{Memory: tools.NewMemory(), Comparator: c}
}

func TestAssertWithAI(t *testing.T) {
	ctx := context.Background()

	cmp := &fakeComparator{verdict: true, reason: "banner visible"}
	res := evaluate.AssertWithAI{Statement: "the order is confirmed"}.Execute(ctx, newContext(cmp))
	assert.True(t, res.IsSuccess())
	assert.Contains(t, res.Message, "banner visible")

	cmp = &fakeComparator{verdict: false, reason: "error dialog shown"}
	res = evaluate.AssertWithAI{Statement: "the order is confirmed"}.Execute(ctx, newContext(cmp))
	assert.Equal(t, tools.StatusFailed, res.Status)
	assert.False(t, res.Fatal, "a false statement is fed back to the model")
	assert.Contains(t, res.Message, "error dialog shown")

	cmp = &fakeComparator{err: errors.New("model unavailable")}
	res = evaluate.AssertWithAI{Statement: "x"}.Execute(ctx, newContext(cmp))
	assert.Equal(t, tools.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "model unavailable")
}

func TestRememberWithAIThenAssertEquals(t *testing.T) {
	ctx := context.Background()
	cmp := &fakeComparator{value: "4711", verdict: true}
	ec := newContext(cmp)

	res := evaluate.RememberWithAI{Prompt: "the order number", Variable: "order"}.Execute(ctx, ec)
	require.True(t, res.IsSuccess(), res.String())
	v, ok := ec.Memory.Get("order")
	require.True(t, ok)
	assert.Equal(t, "4711", v)

	res = evaluate.AssertEquals{Actual: "{{order}}", Expected: "4711"}.Execute(ctx, ec)
	assert.True(t, res.IsSuccess(), res.String())

	res = evaluate.AssertEquals{Actual: "#{{ order }}", Expected: "#4712"}.Execute(ctx, ec)
	assert.Equal(t, tools.StatusFailed, res.Status)
	assert.Contains(t, res.Message, `"#4711" != "#4712"`)

	evaluate.AssertWithAI{Statement: "order {{order}} is listed"}.Execute(ctx, ec)
	assert.Equal(t, []string{"the order number", "order 4711 is listed"}, cmp.asked)
}

func TestRememberText(t *testing.T) {
	ec := newContext(nil)
	ec.Memory.Remember("user", "ada")

	res := evaluate.RememberText{Variable: "email", Value: "{{user}}@example.com"}.Execute(context.Background(), ec)
	require.True(t, res.IsSuccess())
	v, _ := ec.Memory.Get("email")
	assert.Equal(t, "ada@example.com", v)
}

func TestComparatorToolsWithoutComparatorAreFatal(t *testing.T) {
	ctx := context.Background()
	ec := newContext(nil)

	for _, tool := range []tools.Tool{
		evaluate.AssertWithAI{Statement: "x"},
		evaluate.RememberWithAI{Prompt: "x", Variable: "y"},
	} {
		res := tool.Execute(ctx, ec)
		assert.Equal(t, tools.StatusFailed, res.Status, tool.Name())
		assert.True(t, res.Fatal, tool.Name())
		assert.Contains(t, res.Message, "no element comparator configured")
	}
}

func TestDecodeFromTrailArgs(t *testing.T) {
	repo, err := tools.NewRepo(evaluate.Descriptors()...)
	require.NoError(t, err)

	tool, err := repo.Codec().Decode(evaluate.RememberWithAIName, tools.Args{"prompt": "the total", "variable": "total"})
	require.NoError(t, err)
	assert.Equal(t, evaluate.RememberWithAI{Prompt: "the total", Variable: "total"}, tool)
}
