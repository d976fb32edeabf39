package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError indicates that tool arguments failed JSON schema validation.
type ValidationError struct {
	ToolName ToolName
	Errors   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

type schemaProperty struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

type objectSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]schemaProperty `json:"properties"`
	Required             []string                  `json:"required"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// JSONSchema renders the descriptor's parameters as a JSON object schema.
func (d Descriptor) JSONSchema() string {
	s := objectSchema{
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(d.Params)),
		Required:   []string{},
	}
	for _, p := range d.Params {
		s.Properties[p.Name] = schemaProperty{Type: p.Type, Description: p.Description, Enum: p.Enum}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	out, _ := json.Marshal(s)
	return string(out)
}

// ValidateArgs validates args against the descriptor's schema. Integer
// parameters written as YAML strings are tolerated by Decode, so values are
// normalized before validation.
func (d Descriptor) ValidateArgs(args Args) error {
	doc := make(map[string]any, len(args))
	types := make(map[string]ParamType, len(d.Params))
	for _, p := range d.Params {
		types[p.Name] = p.Type
	}
	for k, v := range args {
		doc[k] = normalize(types[k], v)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(d.JSONSchema()),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ValidationError{ToolName: d.Name, Errors: msgs}
	}
	return nil
}

func normalize(t ParamType, v any) any {
	switch t {
	case TypeInteger, TypeNumber:
		if s, ok := v.(string); ok {
			n := json.Number(s)
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	case TypeBoolean:
		if s, ok := v.(string); ok {
			switch s {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return v
}
