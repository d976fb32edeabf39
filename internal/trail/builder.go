package trail

import (
	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// Builder assembles a trail while a run is being recorded. Consecutive
// prompt and verify steps coalesce into one PromptsItem; every other call
// starts a new item.
type Builder struct {
	items []Item
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Config appends a config item.
func (b *Builder) Config(c ConfigItem) *Builder {
	b.items = append(b.items, c)
	return b
}

// Prompt appends a step. recorded is stored as the step's recording when
// non-nil.
func (b *Builder) Prompt(text string, recordable bool, recorded []tools.Tool) *Builder {
	return b.addStep(KindStep, text, recordable, recorded)
}

// Verify appends an assertion step.
func (b *Builder) Verify(text string, recordable bool, recorded []tools.Tool) *Builder {
	return b.addStep(KindVerify, text, recordable, recorded)
}

// Step appends s as is.
func (b *Builder) Step(s PromptStep) *Builder {
	if n := len(b.items); n > 0 {
		if p, ok := b.items[n-1].(PromptsItem); ok {
			steps := make([]PromptStep, 0, len(p.Steps)+1)
			steps = append(steps, p.Steps...)
			b.items[n-1] = PromptsItem{Steps: append(steps, s)}
			return b
		}
	}
	b.items = append(b.items, PromptsItem{Steps: []PromptStep{s}})
	return b
}

func (b *Builder) addStep(kind StepKind, text string, recordable bool, recorded []tools.Tool) *Builder {
	s := PromptStep{Kind: kind, Text: text, Recordable: recordable}
	if recorded != nil {
		s.Recording = &Recording{Tools: WrapAll(recorded)}
	}
	return b.Step(s)
}

// Tools appends a static tool list.
func (b *Builder) Tools(list []tools.Tool) *Builder {
	b.items = append(b.items, ToolsItem{Tools: WrapAll(list)})
	return b
}

// Maestro appends a static command list.
func (b *Builder) Maestro(cmds []maestro.Command) *Builder {
	b.items = append(b.items, MaestroItem{Commands: append([]maestro.Command(nil), cmds...)})
	return b
}

// Len returns the number of items built so far.
func (b *Builder) Len() int { return len(b.items) }

// Build returns the ordered items.
func (b *Builder) Build() []Item {
	return append([]Item(nil), b.items...)
}
