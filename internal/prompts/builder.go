package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// PromptBuilder composes a prompt from a registered template, extra
// fragments and variables.
type PromptBuilder struct {
	basePrompt *Prompt
	fragments  []string
	variables  map[string]string
}

// NewPromptBuilder creates a builder based on a registered prompt.
func NewPromptBuilder(registry *PromptRegistry, id string, version PromptVersion) (*PromptBuilder, error) {
	basePrompt, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return newBuilder(basePrompt), nil
}

// NewLatestBuilder creates a builder from the latest version of id.
func NewLatestBuilder(registry *PromptRegistry, id string) (*PromptBuilder, error) {
	basePrompt, err := registry.GetLatest(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return newBuilder(basePrompt), nil
}

func newBuilder(p *Prompt) *PromptBuilder {
	return &PromptBuilder{
		basePrompt: p,
		fragments:  []string{p.Content},
		variables:  make(map[string]string),
	}
}

// AddFragment appends a fragment to the prompt. Empty fragments are ignored.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build joins the fragments and substitutes variables. Placeholders with no
// variable set are left as written; they may be memory references resolved
// later by the agent.
func (b *PromptBuilder) Build() string {
	result := strings.Join(b.fragments, "\n\n")
	return placeholder.ReplaceAllStringFunc(result, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := b.variables[key]; ok {
			return v
		}
		return m
	})
}
