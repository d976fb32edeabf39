package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSubstitutesOnce(t *testing.T) {
	reg := NewPromptRegistry()
	reg.Register(&Prompt{ID: "p", Version: PromptV1, Content: "do {{objective}} then {{ unknown }}"})

	b, err := NewPromptBuilder(reg, "p", PromptV1)
	require.NoError(t, err)
	got := b.SetVariable("objective", "type {{objective}}").AddFragment("  ").AddFragment("tail").Build()
	assert.Equal(t, "do type {{objective}} then {{ unknown }}\n\ntail", got)
}

func TestGetLatestSkipsDeprecated(t *testing.T) {
	reg := NewPromptRegistry()
	reg.Register(
		&Prompt{ID: "p", Version: "1.0.0", Content: "one"},
		&Prompt{ID: "p", Version: "2.0.0", Content: "two", Deprecated: true},
		&Prompt{ID: "q", Version: "1.0.0", Content: "old", Deprecated: true},
	)

	p, err := reg.GetLatest("p")
	require.NoError(t, err)
	assert.Equal(t, "one", p.Content)

	q, err := reg.GetLatest("q")
	require.NoError(t, err)
	assert.Equal(t, "old", q.Content)

	_, err = reg.GetLatest("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"p", "q"}, reg.List())
	assert.Equal(t, []PromptVersion{"1.0.0", "2.0.0"}, reg.Versions("p"))
}

func TestRenderer(t *testing.T) {
	r := NewRenderer(nil)

	sys, err := r.System("android", "A calculator app.")
	require.NoError(t, err)
	assert.Contains(t, sys, "operating a android device")
	assert.Contains(t, sys, "A calculator app.")
	assert.Contains(t, sys, "{{name}}")

	obj, err := r.Objective("calculate 1+2", false)
	require.NoError(t, err)
	assert.Contains(t, obj, "calculate 1+2")

	verify, err := r.Objective("result is 3", true)
	require.NoError(t, err)
	assert.Contains(t, verify, "Do not change the state")

	screen, err := r.Screen(1080, 1920, "[1] Button \"=\"")
	require.NoError(t, err)
	assert.Contains(t, screen, "1080x1920")
	assert.Contains(t, screen, `[1] Button "="`)
}
