package maestro

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestParseCommands(t *testing.T) {
	src := `
- launchApp: com.example.calc
- launchApp:
    appId: com.example.notes
    clearState: true
- tapOn: "1"
- tapOn:
    id: plus_button
- tapOnPoint: "100,200"
- inputText: hello
- eraseText: 3
- back
- scroll
- swipe:
    direction: left
- assertVisible: "3"
- pressKey: Enter
- waitForAnimationToEnd
`
	got, err := ParseCommands([]byte(src))
	if err != nil {
		t.Fatalf("ParseCommands() error = %v", err)
	}

	want := []Command{
		{Type: CmdLaunchApp, AppID: "com.example.calc"},
		{Type: CmdLaunchApp, AppID: "com.example.notes", ClearState: true},
		{Type: CmdTapOn, Selector: Selector{Text: "1"}},
		{Type: CmdTapOn, Selector: Selector{ID: "plus_button"}},
		{Type: CmdTapOnPoint, Selector: Selector{Point: "100,200"}},
		{Type: CmdInputText, Text: "hello"},
		{Type: CmdEraseText, Count: 3},
		{Type: CmdBack},
		{Type: CmdScroll, Direction: DirectionDown},
		{Type: CmdSwipe, Direction: DirectionLeft},
		{Type: CmdAssertVisible, Selector: Selector{Text: "3"}},
		{Type: CmdPressKey, Key: "Enter"},
		{Type: CmdWaitForAnimationToEnd},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseCommands() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCommands_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unknown command", src: "- flyAway: now"},
		{name: "launch without app", src: "- launchApp"},
		{name: "bad point", src: "- tapOnPoint: nowhere"},
		{name: "bad direction", src: "- swipe: sideways"},
		{name: "multi key mapping", src: "- tapOn: a\n  inputText: b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommands([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestCommandYAMLShortForms(t *testing.T) {
	cmds := []Command{
		Back(),
		TapOn(Selector{Text: "Login"}),
		LaunchApp("calc", false),
		Scroll(DirectionUp),
	}
	out, err := yaml.Marshal(cmds)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	wantPrefix := "- back\n- tapOn: Login\n- launchApp: calc\n"
	if !strings.HasPrefix(string(out), wantPrefix) {
		t.Errorf("Marshal() = %q, want prefix %q", out, wantPrefix)
	}

	back, err := ParseCommands(out)
	if err != nil {
		t.Fatalf("ParseCommands() error = %v", err)
	}
	if diff := cmp.Diff(cmds, back); diff != "" {
		t.Errorf("reparse mismatch (-want +got):\n%s", diff)
	}
}
