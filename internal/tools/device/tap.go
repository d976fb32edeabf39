package device

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

const (
	TapOnElementWithTextName              tools.ToolName = "tapOnElementWithText"
	TapOnElementByNodeIDName              tools.ToolName = "tapOnElementByNodeId"
	TapOnPointName                        tools.ToolName = "tapOnPoint"
	LongPressOnElementWithTextName        tools.ToolName = "longPressOnElementWithText"
	TapOnElementWithAccessibilityTextName tools.ToolName = "tapOnElementWithAccessibilityText"
)

// TapOnElementWithText taps the element showing Text.
type TapOnElementWithText struct {
	Text  string
	Index int
	ID    string
}

func (t TapOnElementWithText) Name() tools.ToolName { return TapOnElementWithTextName }

func (t TapOnElementWithText) Params() []tools.Param {
	ps := []tools.Param{{Name: "text", Value: t.Text}}
	if t.Index != 0 {
		ps = append(ps, tools.Param{Name: "index", Value: t.Index})
	}
	if t.ID != "" {
		ps = append(ps, tools.Param{Name: "id", Value: t.ID})
	}
	return ps
}

func (t TapOnElementWithText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	sel := maestro.Selector{Text: ec.Interpolate(t.Text), Index: t.Index, ID: t.ID}
	return run(ctx, ec, maestro.TapOn(sel))
}

var tapOnElementWithTextDescriptor = tools.Descriptor{
	Name:        TapOnElementWithTextName,
	Description: "Tap the element whose visible text or accessibility text equals `text`. Use `index` when several elements share the text and `id` to narrow by resource id.",
	Params: []tools.ParamSpec{
		textParam("The exact text shown on the element."),
		{Name: "index", Type: tools.TypeInteger, Description: "0-based index among elements with the same text."},
		{Name: "id", Type: tools.TypeString, Description: "Resource id of the element."},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		idx, err := a.Int("index")
		if err != nil {
			return nil, err
		}
		return TapOnElementWithText{Text: a.String("text"), Index: idx, ID: a.String("id")}, nil
	},
}

// TapOnElementByNodeID taps the element labelled NodeID in the current
// screen state. Node ids are valid only for the capture they came from, so
// this tool records itself as a text or point tap.
type TapOnElementByNodeID struct {
	NodeID int
	Reason string
}

func (t TapOnElementByNodeID) Name() tools.ToolName { return TapOnElementByNodeIDName }

func (t TapOnElementByNodeID) Params() []tools.Param {
	ps := []tools.Param{{Name: "nodeId", Value: t.NodeID}}
	if t.Reason != "" {
		ps = append(ps, tools.Param{Name: "reason", Value: t.Reason})
	}
	return ps
}

func (t TapOnElementByNodeID) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if ec.Screen == nil {
		return tools.Failuref("tapOnElementByNodeId: no screen state available")
	}
	node, err := ec.Screen.Hierarchy().FindByID(t.NodeID)
	if err != nil || node.Bounds == nil {
		return tools.Failuref("tapOnElementByNodeId: node %d not found on screen", t.NodeID)
	}
	x, y := node.Bounds.Center()
	return run(ctx, ec, maestro.TapOnPoint(x, y))
}

// RecordAs returns the screen-independent equivalent of this tap.
func (t TapOnElementByNodeID) RecordAs(screen *screenstate.ScreenState) (tools.Tool, bool) {
	if screen == nil {
		return nil, false
	}
	node, err := screen.Hierarchy().FindByID(t.NodeID)
	if err != nil || node.Bounds == nil {
		return nil, false
	}
	if node.Text != "" {
		matches := screen.Hierarchy().Find(maestro.Selector{Text: node.Text})
		for i, m := range matches {
			if m == node {
				return TapOnElementWithText{Text: node.Text, Index: i}, true
			}
		}
	}
	x, y := node.Bounds.Center()
	return TapOnPoint{X: x, Y: y}, true
}

var tapOnElementByNodeIDDescriptor = tools.Descriptor{
	Name:        TapOnElementByNodeIDName,
	Description: "Tap the element labelled with `nodeId` in the current view hierarchy or set-of-mark screenshot.",
	Params: []tools.ParamSpec{
		{Name: "nodeId", Type: tools.TypeInteger, Required: true, Description: "The node id shown next to the element."},
		{Name: "reason", Type: tools.TypeString, Description: "Why this element was chosen."},
	},
	Flags: tools.Flags{ForLLM: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		id, err := a.Int("nodeId")
		if err != nil {
			return nil, err
		}
		return TapOnElementByNodeID{NodeID: id, Reason: a.String("reason")}, nil
	},
}

// TapOnPoint taps absolute coordinates.
type TapOnPoint struct {
	X int
	Y int
}

func (t TapOnPoint) Name() tools.ToolName { return TapOnPointName }

func (t TapOnPoint) Params() []tools.Param {
	return []tools.Param{{Name: "x", Value: t.X}, {Name: "y", Value: t.Y}}
}

func (t TapOnPoint) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if ec.Screen != nil && (t.X >= ec.Screen.DeviceWidth() || t.Y >= ec.Screen.DeviceHeight() || t.X < 0 || t.Y < 0) {
		return tools.Failuref("tapOnPoint: (%d,%d) is outside the %dx%d screen", t.X, t.Y, ec.Screen.DeviceWidth(), ec.Screen.DeviceHeight())
	}
	return run(ctx, ec, maestro.TapOnPoint(t.X, t.Y))
}

var tapOnPointDescriptor = tools.Descriptor{
	Name:        TapOnPointName,
	Description: "Tap the screen at absolute pixel coordinates. Prefer text or node id taps when possible.",
	Params: []tools.ParamSpec{
		{Name: "x", Type: tools.TypeInteger, Required: true, Description: "Horizontal pixel coordinate."},
		{Name: "y", Type: tools.TypeInteger, Required: true, Description: "Vertical pixel coordinate."},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		x, err := a.Int("x")
		if err != nil {
			return nil, err
		}
		y, err := a.Int("y")
		if err != nil {
			return nil, err
		}
		return TapOnPoint{X: x, Y: y}, nil
	},
}

// LongPressOnElementWithText long-presses the element showing Text.
type LongPressOnElementWithText struct {
	Text string
}

func (t LongPressOnElementWithText) Name() tools.ToolName { return LongPressOnElementWithTextName }

func (t LongPressOnElementWithText) Params() []tools.Param {
	return []tools.Param{{Name: "text", Value: t.Text}}
}

func (t LongPressOnElementWithText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.LongPressOn(maestro.Selector{Text: ec.Interpolate(t.Text)}))
}

var longPressOnElementWithTextDescriptor = tools.Descriptor{
	Name:        LongPressOnElementWithTextName,
	Description: "Long-press the element whose text equals `text`.",
	Params:      []tools.ParamSpec{textParam("The exact text shown on the element.")},
	Flags:       llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		return LongPressOnElementWithText{Text: a.String("text")}, nil
	},
}

// TapOnElementWithAccessibilityText is kept so older recordings replay.
type TapOnElementWithAccessibilityText struct {
	AccessibilityText string
}

func (t TapOnElementWithAccessibilityText) Name() tools.ToolName {
	return TapOnElementWithAccessibilityTextName
}

func (t TapOnElementWithAccessibilityText) Params() []tools.Param {
	return []tools.Param{{Name: "accessibilityText", Value: t.AccessibilityText}}
}

func (t TapOnElementWithAccessibilityText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.TapOn(maestro.Selector{Text: ec.Interpolate(t.AccessibilityText)}))
}

var tapOnElementWithAccessibilityTextDescriptor = tools.Descriptor{
	Name:        TapOnElementWithAccessibilityTextName,
	Description: fmt.Sprintf("Deprecated: use %s.", TapOnElementWithTextName),
	Params: []tools.ParamSpec{
		{Name: "accessibilityText", Type: tools.TypeString, Required: true},
	},
	Flags: tools.Flags{ForLLM: true, Recordable: true, Deprecated: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		return TapOnElementWithAccessibilityText{AccessibilityText: a.String("accessibilityText")}, nil
	},
}
