package device

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

const (
	PressBackName     tools.ToolName = "pressBack"
	SwipeName         tools.ToolName = "swipe"
	ScrollName        tools.ToolName = "scroll"
	LaunchAppName     tools.ToolName = "launchApp"
	OpenLinkName      tools.ToolName = "openLink"
	WaitForSettleName tools.ToolName = "waitForSettle"
)

var directions = []string{"UP", "DOWN", "LEFT", "RIGHT"}

// PressBack presses the system back button.
type PressBack struct{}

func (PressBack) Name() tools.ToolName  { return PressBackName }
func (PressBack) Params() []tools.Param { return nil }

func (PressBack) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.Back())
}

var pressBackDescriptor = tools.Descriptor{
	Name:        PressBackName,
	Description: "Press the system back button.",
	Flags:       llmRecordable,
	Decode:      func(tools.Args) (tools.Tool, error) { return PressBack{}, nil },
}

// Swipe swipes across the screen.
type Swipe struct {
	Direction maestro.Direction
}

func (t Swipe) Name() tools.ToolName { return SwipeName }

func (t Swipe) Params() []tools.Param {
	return []tools.Param{{Name: "direction", Value: string(t.Direction)}}
}

func (t Swipe) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.Swipe(t.Direction))
}

var swipeDescriptor = tools.Descriptor{
	Name:        SwipeName,
	Description: "Swipe across the screen in `direction`. A LEFT swipe moves content to the left.",
	Params: []tools.ParamSpec{
		{Name: "direction", Type: tools.TypeString, Required: true, Enum: directions},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		d, err := maestro.ParseDirection(a.String("direction"))
		if err != nil {
			return nil, err
		}
		return Swipe{Direction: d}, nil
	},
}

// Scroll scrolls the main scrollable container.
type Scroll struct {
	Direction maestro.Direction
}

func (t Scroll) Name() tools.ToolName { return ScrollName }

func (t Scroll) Params() []tools.Param {
	return []tools.Param{{Name: "direction", Value: string(t.Direction)}}
}

func (t Scroll) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.Scroll(t.Direction))
}

var scrollDescriptor = tools.Descriptor{
	Name:        ScrollName,
	Description: "Scroll the screen content. DOWN reveals content further down the page.",
	Params: []tools.ParamSpec{
		{Name: "direction", Type: tools.TypeString, Enum: directions, Description: "Defaults to DOWN."},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		d, err := maestro.ParseDirection(a.String("direction"))
		if err != nil {
			return nil, err
		}
		return Scroll{Direction: d}, nil
	},
}

// LaunchMode controls app state on launch.
type LaunchMode string

const (
	LaunchResume       LaunchMode = "RESUME"
	LaunchReinstall    LaunchMode = "REINSTALL"
	LaunchForceRestart LaunchMode = "FORCE_RESTART"
)

// LaunchApp starts the app identified by AppID.
type LaunchApp struct {
	AppID string
	Mode  LaunchMode
}

func (t LaunchApp) Name() tools.ToolName { return LaunchAppName }

func (t LaunchApp) Params() []tools.Param {
	ps := []tools.Param{{Name: "appId", Value: t.AppID}}
	if t.Mode != "" && t.Mode != LaunchResume {
		ps = append(ps, tools.Param{Name: "launchMode", Value: string(t.Mode)})
	}
	return ps
}

func (t LaunchApp) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if t.Mode == LaunchForceRestart {
		if res := run(ctx, ec, maestro.Command{Type: maestro.CmdStopApp, AppID: t.AppID}); !res.IsSuccess() {
			return res
		}
	}
	return run(ctx, ec, maestro.LaunchApp(t.AppID, t.Mode == LaunchReinstall))
}

var launchAppDescriptor = tools.Descriptor{
	Name:        LaunchAppName,
	Description: "Launch the app with package or bundle id `appId`.",
	Params: []tools.ParamSpec{
		{Name: "appId", Type: tools.TypeString, Required: true},
		{Name: "launchMode", Type: tools.TypeString, Enum: []string{string(LaunchResume), string(LaunchReinstall), string(LaunchForceRestart)}},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		mode := LaunchMode(a.String("launchMode"))
		if mode == "" {
			mode = LaunchResume
		}
		return LaunchApp{AppID: a.String("appId"), Mode: mode}, nil
	},
}

// OpenLink opens a URL or deep link.
type OpenLink struct {
	URL string
}

func (t OpenLink) Name() tools.ToolName { return OpenLinkName }

func (t OpenLink) Params() []tools.Param {
	return []tools.Param{{Name: "url", Value: t.URL}}
}

func (t OpenLink) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.Command{Type: maestro.CmdOpenLink, Link: ec.Interpolate(t.URL)})
}

var openLinkDescriptor = tools.Descriptor{
	Name:        OpenLinkName,
	Description: "Open a URL or deep link on the device.",
	Params:      []tools.ParamSpec{{Name: "url", Type: tools.TypeString, Required: true}},
	Flags:       llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		return OpenLink{URL: a.String("url")}, nil
	},
}

// WaitForSettle waits for animations to finish.
type WaitForSettle struct {
	TimeoutMs int
}

func (t WaitForSettle) Name() tools.ToolName { return WaitForSettleName }

func (t WaitForSettle) Params() []tools.Param {
	if t.TimeoutMs == 0 {
		return nil
	}
	return []tools.Param{{Name: "timeoutMs", Value: t.TimeoutMs}}
}

func (t WaitForSettle) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.WaitForAnimationToEnd(t.TimeoutMs))
}

var waitForSettleDescriptor = tools.Descriptor{
	Name:        WaitForSettleName,
	Description: "Wait until the screen stops changing, e.g. after a navigation or while content loads.",
	Params: []tools.ParamSpec{
		{Name: "timeoutMs", Type: tools.TypeInteger, Description: "Upper bound in milliseconds."},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		n, err := a.Int("timeoutMs")
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("timeoutMs must not be negative")
		}
		return WaitForSettle{TimeoutMs: n}, nil
	},
}
