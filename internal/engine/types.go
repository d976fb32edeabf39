package engine

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Image is an attachment carried by a user message.
type Image struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole
	Content string
	Name    string // tool name for tool messages
	// ToolCallID links a tool message to the assistant call it answers.
	ToolCallID string
	// ToolCalls made by an assistant message. Providers require them to be
	// echoed back in later requests.
	ToolCalls []ToolCall
	Images    []Image
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.Name == "" {
		return fmt.Errorf("tool messages must have a Name field")
	}
	if len(m.Images) > 0 && m.Role != RoleUser {
		return fmt.Errorf("images are only allowed on user messages")
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ToolCall represents a function/tool the assistant requested.
type ToolCall struct {
	ID    string // provider-specific tool call id
	Name  string
	Args  map[string]any
	Error string // set by the provider when the call arrived malformed
}

// LLMResponse is a normalized result of one chat call.
type LLMResponse struct {
	ID           string
	Assistant    ChatMessage
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// LLMClient abstracts the provider SDK.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (LLMResponse, error)
}

// ChatOptions keeps knobs forwarded to the SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
	// ToolChoice forces a specific tool when set.
	ToolChoice string
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// SchemasFrom converts the tools the repo offers to the model.
func SchemasFrom(repo *tools.Repo) []ToolSchema {
	src := repo.Schemas()
	out := make([]ToolSchema, 0, len(src))
	for _, s := range src {
		out = append(out, ToolSchema{Name: s.Name, Description: s.Description, JSONSchema: s.JSONSchema})
	}
	return out
}
