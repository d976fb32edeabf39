// Package evaluate provides tools that read values off the screen into
// session memory and assert on them.
package evaluate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

const (
	RememberTextName   tools.ToolName = "rememberText"
	RememberWithAIName tools.ToolName = "rememberWithAI"
	AssertWithAIName   tools.ToolName = "assertWithAI"
	AssertEqualsName   tools.ToolName = "assertEquals"
)

var errNoComparator = errors.New("no element comparator configured")

// Descriptors returns every evaluate tool variant.
func Descriptors() []tools.Descriptor {
	return []tools.Descriptor{
		rememberTextDescriptor,
		rememberWithAIDescriptor,
		assertWithAIDescriptor,
		assertEqualsDescriptor,
	}
}

func variableParam() tools.ParamSpec {
	return tools.ParamSpec{Name: "variable", Type: tools.TypeString, Required: true, Description: "Memory key, referenced later as {{variable}}."}
}

// RememberText stores a literal value.
type RememberText struct {
	Variable string
	Value    string
}

func (t RememberText) Name() tools.ToolName { return RememberTextName }

func (t RememberText) Params() []tools.Param {
	return []tools.Param{{Name: "variable", Value: t.Variable}, {Name: "value", Value: t.Value}}
}

func (t RememberText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if ec.Memory == nil {
		return tools.FatalFailure(errors.New("rememberText: no memory bound"))
	}
	v := ec.Interpolate(t.Value)
	ec.Memory.Remember(t.Variable, v)
	return tools.Success("remembered %s=%q", t.Variable, v)
}

var rememberTextDescriptor = tools.Descriptor{
	Name:        RememberTextName,
	Description: "Store `value` in memory under `variable`.",
	Params:      []tools.ParamSpec{variableParam(), {Name: "value", Type: tools.TypeString, Required: true}},
	Flags:       tools.Flags{Recordable: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		return RememberText{Variable: a.String("variable"), Value: a.String("value")}, nil
	},
}

// RememberWithAI extracts a value from the screen and stores it.
type RememberWithAI struct {
	Prompt   string
	Variable string
}

func (t RememberWithAI) Name() tools.ToolName { return RememberWithAIName }

func (t RememberWithAI) Params() []tools.Param {
	return []tools.Param{{Name: "prompt", Value: t.Prompt}, {Name: "variable", Value: t.Variable}}
}

func (t RememberWithAI) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if ec.Comparator == nil {
		return tools.FatalFailure(fmt.Errorf("rememberWithAI: %w", errNoComparator))
	}
	if ec.Memory == nil {
		return tools.FatalFailure(errors.New("rememberWithAI: no memory bound"))
	}
	v, err := ec.Comparator.EvaluateString(ctx, ec.Screen, ec.Interpolate(t.Prompt))
	if err != nil {
		return tools.Failuref("rememberWithAI: %v", err)
	}
	ec.Memory.Remember(t.Variable, v)
	return tools.Success("remembered %s=%q", t.Variable, v)
}

var rememberWithAIDescriptor = tools.Descriptor{
	Name:        RememberWithAIName,
	Description: "Read a value described by `prompt` from the current screen and remember it under `variable`.",
	Params: []tools.ParamSpec{
		{Name: "prompt", Type: tools.TypeString, Required: true, Description: "What to read, e.g. 'the order number'."},
		variableParam(),
	},
	Flags: tools.Flags{ForLLM: true, Recordable: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		return RememberWithAI{Prompt: a.String("prompt"), Variable: a.String("variable")}, nil
	},
}

// AssertWithAI evaluates a natural-language statement against the screen.
type AssertWithAI struct {
	Statement string
}

func (t AssertWithAI) Name() tools.ToolName { return AssertWithAIName }

func (t AssertWithAI) Params() []tools.Param {
	return []tools.Param{{Name: "statement", Value: t.Statement}}
}

func (t AssertWithAI) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if ec.Comparator == nil {
		return tools.FatalFailure(fmt.Errorf("assertWithAI: %w", errNoComparator))
	}
	stmt := ec.Interpolate(t.Statement)
	ok, reason, err := ec.Comparator.EvaluateBoolean(ctx, ec.Screen, stmt)
	if err != nil {
		return tools.Failuref("assertWithAI: %v", err)
	}
	if !ok {
		return tools.Failuref("assertion %q is false: %s", stmt, reason)
	}
	return tools.Success("assertion %q holds: %s", stmt, reason)
}

var assertWithAIDescriptor = tools.Descriptor{
	Name:        AssertWithAIName,
	Description: "Assert that a natural-language `statement` about the current screen is true.",
	Params:      []tools.ParamSpec{{Name: "statement", Type: tools.TypeString, Required: true}},
	Flags:       tools.Flags{Recordable: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		return AssertWithAI{Statement: a.String("statement")}, nil
	},
}

// AssertEquals compares two strings after memory interpolation.
type AssertEquals struct {
	Actual   string
	Expected string
}

func (t AssertEquals) Name() tools.ToolName { return AssertEqualsName }

func (t AssertEquals) Params() []tools.Param {
	return []tools.Param{{Name: "actual", Value: t.Actual}, {Name: "expected", Value: t.Expected}}
}

func (t AssertEquals) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	actual, expected := ec.Interpolate(t.Actual), ec.Interpolate(t.Expected)
	if actual != expected {
		return tools.Failuref("assertEquals: %q != %q", actual, expected)
	}
	return tools.Success("assertEquals: %q", actual)
}

var assertEqualsDescriptor = tools.Descriptor{
	Name:        AssertEqualsName,
	Description: "Assert that `actual` equals `expected`. Both may reference remembered values.",
	Params: []tools.ParamSpec{
		{Name: "actual", Type: tools.TypeString, Required: true},
		{Name: "expected", Type: tools.TypeString, Required: true},
	},
	Flags: tools.Flags{Recordable: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		return AssertEquals{Actual: a.String("actual"), Expected: a.String("expected")}, nil
	},
}
