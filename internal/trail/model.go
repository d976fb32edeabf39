// Package trail models trail files: the ordered list of config, prompt,
// tool and maestro items a test consists of.
package trail

import (
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// Item is one top-level trail entry: ConfigItem, PromptsItem, ToolsItem or
// MaestroItem.
type Item interface {
	Key() string
}

const (
	keyConfig  = "config"
	keyPrompts = "prompts"
	keyTools   = "tools"
	keyMaestro = "maestro"
)

// ConfigItem carries test metadata.
type ConfigItem struct {
	ID          string `yaml:"id,omitempty"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	Priority    string `yaml:"priority,omitempty"`
	Source      string `yaml:"source,omitempty"`
	Platform    string `yaml:"platform,omitempty"`

	// Context is appended to the system prompt of every prompt step.
	Context  string            `yaml:"context,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// PromptsItem is an ordered group of prompt steps.
type PromptsItem struct {
	Steps []PromptStep
}

// ToolsItem is a static tool list run without the model.
type ToolsItem struct {
	Tools []ToolWrapper
}

// MaestroItem is a static device command list.
type MaestroItem struct {
	Commands []maestro.Command
}

func (ConfigItem) Key() string  { return keyConfig }
func (PromptsItem) Key() string { return keyPrompts }
func (ToolsItem) Key() string   { return keyTools }
func (MaestroItem) Key() string { return keyMaestro }

// StepKind distinguishes directions from assertions.
type StepKind string

const (
	KindStep   StepKind = "step"
	KindVerify StepKind = "verify"
)

// PromptStep is one natural-language objective.
type PromptStep struct {
	Kind StepKind
	Text string

	// Recordable is false for steps that must always go to the model.
	Recordable bool
	Recording  *Recording
}

// Recorded returns the step's recorded tools, or nil.
func (s PromptStep) Recorded() []tools.Tool {
	if s.Recording == nil {
		return nil
	}
	out := make([]tools.Tool, 0, len(s.Recording.Tools))
	for _, w := range s.Recording.Tools {
		out = append(out, w.Tool)
	}
	return out
}

// Recording is the tool sequence captured from a successful live run.
type Recording struct {
	Tools []ToolWrapper
}

// ToolWrapper pairs a tool with its name for serialization.
type ToolWrapper struct {
	Name tools.ToolName
	Tool tools.Tool
}

// Wrap returns the wrapper for t.
func Wrap(t tools.Tool) ToolWrapper {
	return ToolWrapper{Name: t.Name(), Tool: t}
}

// WrapAll wraps every tool of list.
func WrapAll(list []tools.Tool) []ToolWrapper {
	out := make([]ToolWrapper, 0, len(list))
	for _, t := range list {
		out = append(out, Wrap(t))
	}
	return out
}

// Validate checks that the name matches the instance.
func (w ToolWrapper) Validate() error {
	if w.Tool == nil {
		return fmt.Errorf("tool %s: missing instance", w.Name)
	}
	if w.Tool.Name() != w.Name {
		return fmt.Errorf("tool wrapper name %s does not match instance %s", w.Name, w.Tool.Name())
	}
	return nil
}

// Unwrap returns the tools of a static list.
func (t ToolsItem) Unwrap() []tools.Tool {
	out := make([]tools.Tool, 0, len(t.Tools))
	for _, w := range t.Tools {
		out = append(out, w.Tool)
	}
	return out
}

// FindConfig returns the first config item of items.
func FindConfig(items []Item) (ConfigItem, bool) {
	for _, it := range items {
		if c, ok := it.(ConfigItem); ok {
			return c, true
		}
	}
	return ConfigItem{}, false
}
