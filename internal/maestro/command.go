// Package maestro models the static device-automation commands a trail can
// carry verbatim and that device tools lower themselves into.
package maestro

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandType names one device-automation command.
type CommandType string

const (
	CmdLaunchApp             CommandType = "launchApp"
	CmdStopApp               CommandType = "stopApp"
	CmdClearState            CommandType = "clearState"
	CmdTapOn                 CommandType = "tapOn"
	CmdLongPressOn           CommandType = "longPressOn"
	CmdTapOnPoint            CommandType = "tapOnPoint"
	CmdInputText             CommandType = "inputText"
	CmdEraseText             CommandType = "eraseText"
	CmdBack                  CommandType = "back"
	CmdHideKeyboard          CommandType = "hideKeyboard"
	CmdPressKey              CommandType = "pressKey"
	CmdSwipe                 CommandType = "swipe"
	CmdScroll                CommandType = "scroll"
	CmdAssertVisible         CommandType = "assertVisible"
	CmdAssertNotVisible      CommandType = "assertNotVisible"
	CmdOpenLink              CommandType = "openLink"
	CmdWaitForAnimationToEnd CommandType = "waitForAnimationToEnd"
)

var knownTypes = map[CommandType]bool{
	CmdLaunchApp: true, CmdStopApp: true, CmdClearState: true,
	CmdTapOn: true, CmdLongPressOn: true, CmdTapOnPoint: true,
	CmdInputText: true, CmdEraseText: true, CmdBack: true,
	CmdHideKeyboard: true, CmdPressKey: true, CmdSwipe: true,
	CmdScroll: true, CmdAssertVisible: true, CmdAssertNotVisible: true,
	CmdOpenLink: true, CmdWaitForAnimationToEnd: true,
}

// IsKnown reports whether t is a command this package can decode.
func IsKnown(t CommandType) bool {
	return knownTypes[t]
}

// Direction is a swipe or scroll direction.
type Direction string

const (
	DirectionUp    Direction = "UP"
	DirectionDown  Direction = "DOWN"
	DirectionLeft  Direction = "LEFT"
	DirectionRight Direction = "RIGHT"
)

// ParseDirection normalizes a user supplied direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return d, nil
	case "":
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("invalid direction %q", s)
	}
}

// Point is an absolute screen coordinate.
type Point struct {
	X int
	Y int
}

func (p Point) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// ParsePoint parses "x,y".
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("invalid point %q: expected x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}

// Selector locates an element on screen.
type Selector struct {
	Text  string `yaml:"text,omitempty"`
	ID    string `yaml:"id,omitempty"`
	Index int    `yaml:"index,omitempty"`
	Point string `yaml:"point,omitempty"`
}

// IsZero reports whether no locator field is set.
func (s Selector) IsZero() bool {
	return s.Text == "" && s.ID == "" && s.Point == ""
}

func (s Selector) String() string {
	switch {
	case s.Point != "":
		return "point=" + s.Point
	case s.ID != "" && s.Text != "":
		return fmt.Sprintf("id=%s text=%q", s.ID, s.Text)
	case s.ID != "":
		return "id=" + s.ID
	default:
		return fmt.Sprintf("text=%q", s.Text)
	}
}

// Command is one device-automation instruction. Which fields are meaningful
// depends on Type.
type Command struct {
	Type       CommandType
	Selector   Selector
	Text       string
	AppID      string
	Key        string
	Link       string
	Direction  Direction
	Count      int
	ClearState bool
	TimeoutMs  int
}

func (c Command) String() string {
	switch c.Type {
	case CmdLaunchApp, CmdStopApp, CmdClearState:
		return fmt.Sprintf("%s(%s)", c.Type, c.AppID)
	case CmdTapOn, CmdLongPressOn, CmdAssertVisible, CmdAssertNotVisible:
		return fmt.Sprintf("%s(%s)", c.Type, c.Selector)
	case CmdTapOnPoint:
		return fmt.Sprintf("%s(%s)", c.Type, c.Selector.Point)
	case CmdInputText:
		return fmt.Sprintf("%s(%q)", c.Type, c.Text)
	case CmdSwipe, CmdScroll:
		return fmt.Sprintf("%s(%s)", c.Type, c.Direction)
	case CmdPressKey:
		return fmt.Sprintf("%s(%s)", c.Type, c.Key)
	case CmdOpenLink:
		return fmt.Sprintf("%s(%s)", c.Type, c.Link)
	default:
		return string(c.Type)
	}
}

// Validate checks the fields required by the command type.
func (c Command) Validate() error {
	if !IsKnown(c.Type) {
		return fmt.Errorf("unknown command type: %s", c.Type)
	}
	switch c.Type {
	case CmdLaunchApp, CmdStopApp, CmdClearState:
		if c.AppID == "" {
			return fmt.Errorf("%s: appId is required", c.Type)
		}
	case CmdTapOn, CmdLongPressOn, CmdAssertVisible, CmdAssertNotVisible:
		if c.Selector.IsZero() {
			return fmt.Errorf("%s: selector is required", c.Type)
		}
	case CmdTapOnPoint:
		if _, err := ParsePoint(c.Selector.Point); err != nil {
			return fmt.Errorf("%s: %w", c.Type, err)
		}
	case CmdInputText:
		if c.Text == "" {
			return fmt.Errorf("%s: text is required", c.Type)
		}
	case CmdPressKey:
		if c.Key == "" {
			return fmt.Errorf("%s: key is required", c.Type)
		}
	case CmdOpenLink:
		if c.Link == "" {
			return fmt.Errorf("%s: link is required", c.Type)
		}
	}
	return nil
}

// Constructors used by device tools.

func LaunchApp(appID string, clearState bool) Command {
	return Command{Type: CmdLaunchApp, AppID: appID, ClearState: clearState}
}

func TapOn(sel Selector) Command {
	return Command{Type: CmdTapOn, Selector: sel}
}

func LongPressOn(sel Selector) Command {
	return Command{Type: CmdLongPressOn, Selector: sel}
}

func TapOnPoint(x, y int) Command {
	return Command{Type: CmdTapOnPoint, Selector: Selector{Point: Point{X: x, Y: y}.String()}}
}

func InputText(text string) Command {
	return Command{Type: CmdInputText, Text: text}
}

func EraseText(count int) Command {
	return Command{Type: CmdEraseText, Count: count}
}

func Back() Command {
	return Command{Type: CmdBack}
}

func HideKeyboard() Command {
	return Command{Type: CmdHideKeyboard}
}

func Swipe(d Direction) Command {
	return Command{Type: CmdSwipe, Direction: d}
}

func Scroll(d Direction) Command {
	return Command{Type: CmdScroll, Direction: d}
}

func AssertVisible(sel Selector) Command {
	return Command{Type: CmdAssertVisible, Selector: sel}
}

func AssertNotVisible(sel Selector) Command {
	return Command{Type: CmdAssertNotVisible, Selector: sel}
}

func WaitForAnimationToEnd(timeoutMs int) Command {
	return Command{Type: CmdWaitForAnimationToEnd, TimeoutMs: timeoutMs}
}
