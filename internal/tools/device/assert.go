package device

import (
	"context"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

const (
	AssertVisibleWithTextName    tools.ToolName = "assertVisibleWithText"
	AssertNotVisibleWithTextName tools.ToolName = "assertNotVisibleWithText"
)

// AssertVisibleWithText passes when an element showing Text is on screen.
type AssertVisibleWithText struct {
	Text string
}

func (t AssertVisibleWithText) Name() tools.ToolName { return AssertVisibleWithTextName }

func (t AssertVisibleWithText) Params() []tools.Param {
	return []tools.Param{{Name: "text", Value: t.Text}}
}

func (t AssertVisibleWithText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.AssertVisible(maestro.Selector{Text: ec.Interpolate(t.Text)}))
}

var assertVisibleWithTextDescriptor = tools.Descriptor{
	Name:        AssertVisibleWithTextName,
	Description: "Assert that an element showing exactly `text` is visible. Use this to verify an expected result.",
	Params:      []tools.ParamSpec{textParam("The exact text expected on screen.")},
	Flags:       llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		return AssertVisibleWithText{Text: a.String("text")}, nil
	},
}

// AssertNotVisibleWithText passes when no element shows Text.
type AssertNotVisibleWithText struct {
	Text string
}

func (t AssertNotVisibleWithText) Name() tools.ToolName { return AssertNotVisibleWithTextName }

func (t AssertNotVisibleWithText) Params() []tools.Param {
	return []tools.Param{{Name: "text", Value: t.Text}}
}

func (t AssertNotVisibleWithText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.AssertNotVisible(maestro.Selector{Text: ec.Interpolate(t.Text)}))
}

var assertNotVisibleWithTextDescriptor = tools.Descriptor{
	Name:        AssertNotVisibleWithTextName,
	Description: "Assert that no element showing exactly `text` is visible.",
	Params:      []tools.ParamSpec{textParam("Text that must not be on screen.")},
	Flags:       llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		return AssertNotVisibleWithText{Text: a.String("text")}, nil
	},
}
