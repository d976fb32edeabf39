package maestro

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed command with its source line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func wrapParseError(line int, err error) error {
	return &ParseError{Line: line, Message: err.Error()}
}

// ParseCommands decodes a YAML sequence of commands.
func ParseCommands(data []byte) ([]Command, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid commands: %v", err)}
	}
	cmds := make([]Command, 0, len(nodes))
	for i := range nodes {
		var c Command
		if err := c.UnmarshalYAML(&nodes[i]); err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

type launchArgs struct {
	AppID      string `yaml:"appId"`
	ClearState bool   `yaml:"clearState,omitempty"`
}

type directionArgs struct {
	Direction string `yaml:"direction"`
}

type eraseArgs struct {
	CharactersToErase int `yaml:"charactersToErase"`
}

type waitArgs struct {
	Timeout int `yaml:"timeout"`
}

// UnmarshalYAML accepts both the scalar ("- back") and the single-key
// mapping ("- tapOn: Login") forms.
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	var value *yaml.Node
	switch node.Kind {
	case yaml.ScalarNode:
		c.Type = CommandType(node.Value)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return &ParseError{Line: node.Line, Message: "command must be a single-key mapping"}
		}
		c.Type = CommandType(node.Content[0].Value)
		value = node.Content[1]
	default:
		return &ParseError{Line: node.Line, Message: "command must be a mapping or command name"}
	}
	if !IsKnown(c.Type) {
		return &ParseError{Line: node.Line, Message: fmt.Sprintf("unknown command type: %s", c.Type)}
	}
	if err := c.decodeValue(value); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return wrapParseError(node.Line, err)
	}
	return nil
}

func isScalar(n *yaml.Node) bool {
	return n != nil && n.Kind == yaml.ScalarNode
}

//nolint:gocyclo
func (c *Command) decodeValue(value *yaml.Node) error {
	switch c.Type {
	case CmdLaunchApp:
		if value == nil {
			return nil
		}
		if isScalar(value) {
			c.AppID = value.Value
			return nil
		}
		var a launchArgs
		if err := value.Decode(&a); err != nil {
			return wrapParseError(value.Line, err)
		}
		c.AppID, c.ClearState = a.AppID, a.ClearState

	case CmdStopApp, CmdClearState:
		if isScalar(value) {
			c.AppID = value.Value
		}

	case CmdTapOn, CmdLongPressOn, CmdAssertVisible, CmdAssertNotVisible, CmdTapOnPoint:
		if value == nil {
			return nil
		}
		if isScalar(value) {
			if c.Type == CmdTapOnPoint {
				c.Selector.Point = value.Value
			} else {
				c.Selector.Text = value.Value
			}
			return nil
		}
		if err := value.Decode(&c.Selector); err != nil {
			return wrapParseError(value.Line, err)
		}

	case CmdInputText:
		if isScalar(value) {
			c.Text = value.Value
		}

	case CmdEraseText:
		if value == nil {
			return nil
		}
		if isScalar(value) {
			n, err := strconv.Atoi(value.Value)
			if err != nil {
				return wrapParseError(value.Line, fmt.Errorf("eraseText: %w", err))
			}
			c.Count = n
			return nil
		}
		var a eraseArgs
		if err := value.Decode(&a); err != nil {
			return wrapParseError(value.Line, err)
		}
		c.Count = a.CharactersToErase

	case CmdPressKey:
		if isScalar(value) {
			c.Key = value.Value
		}

	case CmdOpenLink:
		if isScalar(value) {
			c.Link = value.Value
		}

	case CmdSwipe, CmdScroll:
		raw := ""
		if isScalar(value) {
			raw = value.Value
		} else if value != nil {
			var a directionArgs
			if err := value.Decode(&a); err != nil {
				return wrapParseError(value.Line, err)
			}
			raw = a.Direction
		}
		d, err := ParseDirection(raw)
		if err != nil {
			return wrapParseError(0, err)
		}
		c.Direction = d

	case CmdWaitForAnimationToEnd:
		if value != nil && !isScalar(value) {
			var a waitArgs
			if err := value.Decode(&a); err != nil {
				return wrapParseError(value.Line, err)
			}
			c.TimeoutMs = a.Timeout
		}
	}
	return nil
}

// MarshalYAML emits the shortest form that UnmarshalYAML reads back to an
// equal Command.
func (c Command) MarshalYAML() (any, error) {
	single := func(v any) map[string]any {
		return map[string]any{string(c.Type): v}
	}
	switch c.Type {
	case CmdBack, CmdHideKeyboard:
		return string(c.Type), nil
	case CmdWaitForAnimationToEnd:
		if c.TimeoutMs == 0 {
			return string(c.Type), nil
		}
		return single(waitArgs{Timeout: c.TimeoutMs}), nil
	case CmdLaunchApp:
		if !c.ClearState {
			return single(c.AppID), nil
		}
		return single(launchArgs{AppID: c.AppID, ClearState: true}), nil
	case CmdStopApp, CmdClearState:
		return single(c.AppID), nil
	case CmdTapOn, CmdLongPressOn, CmdAssertVisible, CmdAssertNotVisible:
		if c.Selector.ID == "" && c.Selector.Index == 0 && c.Selector.Point == "" {
			return single(c.Selector.Text), nil
		}
		return single(c.Selector), nil
	case CmdTapOnPoint:
		return single(c.Selector.Point), nil
	case CmdInputText:
		return single(c.Text), nil
	case CmdEraseText:
		if c.Count == 0 {
			return string(c.Type), nil
		}
		return single(c.Count), nil
	case CmdPressKey:
		return single(c.Key), nil
	case CmdOpenLink:
		return single(c.Link), nil
	case CmdSwipe, CmdScroll:
		return single(directionArgs{Direction: string(c.Direction)}), nil
	}
	return nil, fmt.Errorf("cannot encode command type %q", c.Type)
}
