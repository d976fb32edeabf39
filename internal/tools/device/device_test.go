package device

import (
	"context"
	"testing"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
	"github.com/ChamsBouzaiene/trailblaze/internal/driver/mock"
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

func calculatorScreen() *driver.ViewNode {
	return &driver.ViewNode{
		Bounds: &driver.Bounds{Width: 300, Height: 600},
		Children: []*driver.ViewNode{
			{Text: "1", Clickable: true, Enabled: true, Bounds: &driver.Bounds{X: 0, Y: 100, Width: 100, Height: 100}},
			{Text: "1", Clickable: true, Enabled: true, Bounds: &driver.Bounds{X: 100, Y: 500, Width: 100, Height: 100}},
			{AccessibilityText: "equals", Clickable: true, Enabled: true, Bounds: &driver.Bounds{X: 200, Y: 500, Width: 100, Height: 100}},
		},
	}
}

func TestTapOnElementByNodeID(t *testing.T) {
	d := mock.New(mock.Config{})
	screen := screenstate.New(driver.DeviceInfo{Width: 300, Height: 600}, calculatorScreen(), nil)
	ec := &tools.ExecContext{Driver: d, Screen: screen}

	res := TapOnElementByNodeID{NodeID: 3}.Execute(context.Background(), ec)
	if !res.IsSuccess() {
		t.Fatalf("Execute() = %v", res)
	}
	got := d.Executed()
	if len(got) != 1 || got[0] != maestro.TapOnPoint(150, 550) {
		t.Errorf("executed = %v, want tap at 150,550", got)
	}

	res = TapOnElementByNodeID{NodeID: 42}.Execute(context.Background(), ec)
	if res.IsSuccess() || res.Fatal {
		t.Errorf("missing node should be a recoverable failure, got %+v", res)
	}
}

func TestTapOnElementByNodeIDRecordAs(t *testing.T) {
	screen := screenstate.New(driver.DeviceInfo{Width: 300, Height: 600}, calculatorScreen(), nil)

	tests := []struct {
		name string
		id   int
		want tools.Tool
	}{
		{"second of duplicate text", 3, TapOnElementWithText{Text: "1", Index: 1}},
		{"no text falls back to point", 4, TapOnPoint{X: 250, Y: 550}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TapOnElementByNodeID{NodeID: tt.id}.RecordAs(screen)
			if !ok {
				t.Fatal("RecordAs() returned false")
			}
			if got != tt.want {
				t.Errorf("RecordAs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestLaunchAppModes(t *testing.T) {
	d := mock.New(mock.Config{})
	ec := &tools.ExecContext{Driver: d}

	LaunchApp{AppID: "calc", Mode: LaunchForceRestart}.Execute(context.Background(), ec)
	LaunchApp{AppID: "calc", Mode: LaunchReinstall}.Execute(context.Background(), ec)

	want := []maestro.Command{
		{Type: maestro.CmdStopApp, AppID: "calc"},
		maestro.LaunchApp("calc", false),
		maestro.LaunchApp("calc", true),
	}
	got := d.Executed()
	if len(got) != len(want) {
		t.Fatalf("executed %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTransportErrorIsFatal(t *testing.T) {
	d := mock.New(mock.Config{FailTransport: true})
	res := PressBack{}.Execute(context.Background(), &tools.ExecContext{Driver: d})
	if res.IsSuccess() || !res.Fatal {
		t.Errorf("transport failure should be fatal, got %+v", res)
	}
}

func TestTapOnPointOutsideScreen(t *testing.T) {
	d := mock.New(mock.Config{})
	screen := screenstate.New(driver.DeviceInfo{Width: 300, Height: 600}, calculatorScreen(), nil)
	res := TapOnPoint{X: 400, Y: 10}.Execute(context.Background(), &tools.ExecContext{Driver: d, Screen: screen})
	if res.IsSuccess() {
		t.Error("tap outside the screen should fail")
	}
	if len(d.Executed()) != 0 {
		t.Error("no command should reach the driver")
	}
}
