package engine

import (
	"strings"
)

// ImageTokenEstimate approximates what a provider charges for one
// downscaled phone screenshot.
const ImageTokenEstimate = 1600

// EstimateTokens provides a rough token count estimation.
// Uses a simple heuristic: ~4 characters per token, fewer for whitespace-heavy text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// EstimateMessageTokens estimates the prompt size of messages, including
// tool calls, images and about 4 tokens of formatting per message.
func EstimateMessageTokens(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(string(msg.Role))
		total += EstimateTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += EstimateTokens(tc.Name)
			total += EstimateTokens(argsJSON(tc.Args))
		}
		total += len(msg.Images) * ImageTokenEstimate
		total += 4
	}
	return total
}

// EstimateSchemaTokens estimates the size of the tool definitions.
func EstimateSchemaTokens(schemas []ToolSchema) int {
	total := 0
	for _, s := range schemas {
		total += EstimateTokens(s.Name) + EstimateTokens(s.Description) + EstimateTokens(s.JSONSchema) + 10
	}
	return total
}
