// Package tools holds the tool model: named, serializable device actions and
// assertions the agent can invoke, the per-run registry that resolves them by
// name, and the codec that turns them into and out of wire form.
package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToolName is the stable tag identifying a tool variant.
type ToolName string

// ErrEmptyToolName is returned by NewToolName for blank names.
var ErrEmptyToolName = errors.New("tool name must not be empty")

// NewToolName validates and wraps s.
func NewToolName(s string) (ToolName, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyToolName
	}
	return ToolName(s), nil
}

func (n ToolName) String() string { return string(n) }

// Param is one parameter value of a tool instance.
type Param struct {
	Name  string
	Value any
}

// Tool is a decoded, executable tool instance.
type Tool interface {
	Name() ToolName
	// Params returns the instance's parameters in declaration order. Unset
	// optional parameters are omitted.
	Params() []Param
	Execute(ctx context.Context, ec *ExecContext) Result
}

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// ParamSpec declares one parameter of a tool.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
	Enum        []string
}

// Flags carries execution metadata.
type Flags struct {
	ForLLM     bool // offered to the model
	Recordable bool // may be captured into a recording
	Deprecated bool // hidden from selection, still replayable
}

// DecodeFunc builds a tool instance from validated arguments.
type DecodeFunc func(args Args) (Tool, error)

// Descriptor registers one tool variant.
type Descriptor struct {
	Name        ToolName
	Description string
	Params      []ParamSpec
	Flags       Flags
	Decode      DecodeFunc
}

// OfferedToLLM reports whether the model may select this tool.
func (d Descriptor) OfferedToLLM() bool {
	return d.Flags.ForLLM && !d.Flags.Deprecated
}

// Args is a loosely typed argument map as produced by JSON or YAML decoding.
type Args map[string]any

// String returns the named argument as a string.
func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the named argument as an int. JSON numbers arrive as float64,
// YAML numbers as int.
func (a Args) Int(name string) (int, error) {
	switch v := a[name].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s: %v is not an integer", name, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unexpected type %T", name, v)
	}
}

// Bool returns the named argument as a bool.
func (a Args) Bool(name string) bool {
	switch v := a[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// ParamsToArgs converts ordered params back into an argument map.
func ParamsToArgs(params []Param) Args {
	out := make(Args, len(params))
	for _, p := range params {
		out[p.Name] = p.Value
	}
	return out
}
