package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short word", text: "hello", want: 1},
		{name: "sentence", text: "hello world this is a test", want: 6},
		{name: "tool args", text: `{"text":"1","index":0}`, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	text := []ChatMessage{{Role: RoleUser, Content: "hello"}}
	// role(1) + content(1) + overhead(4)
	assert.Equal(t, 6, EstimateMessageTokens(text))

	withImage := []ChatMessage{{Role: RoleUser, Content: "hello", Images: []Image{{MediaType: "image/png"}}}}
	assert.Equal(t, 6+ImageTokenEstimate, EstimateMessageTokens(withImage))

	withCall := []ChatMessage{{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{Name: "tapOnElementWithText", Args: map[string]any{"text": "1"}}},
	}}
	assert.Greater(t, EstimateMessageTokens(withCall), 4)
}
