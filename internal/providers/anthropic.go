package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
)

const defaultMaxTokens = 4096

// AnthropicClient implements engine.LLMClient on the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client. baseURL overrides the API endpoint
// when set.
func NewAnthropicClient(apiKey, modelName, baseURL string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  modelName,
	}, nil
}

// Chat implements engine.LLMClient.
func (c *AnthropicClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if modelName == "" {
		modelName = c.model
	}
	req, err := anthropicRequest(modelName, messages, toolSchemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		var reqErr *anthropic.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode != 0 {
			httpStatus = reqErr.StatusCode
		}
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	return anthropicResponse(resp), nil
}

func anthropicRequest(modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (anthropic.MessagesRequest, error) {
	system, rest := splitSystem(messages)
	rest = dropOrphanToolResults(rest)

	var msgs []anthropic.Message
	// push appends content to the last message when the role repeats; the
	// API expects strictly alternating turns.
	push := func(role anthropic.ChatRole, content ...anthropic.MessageContent) {
		if len(content) == 0 {
			return
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, content...)
			return
		}
		msgs = append(msgs, anthropic.Message{Role: role, Content: content})
	}

	for _, m := range rest {
		switch m.Role {
		case engine.RoleUser:
			// Images go first so the text refers to what was already seen.
			var content []anthropic.MessageContent
			for _, img := range m.Images {
				content = append(content, anthropic.NewImageMessageContent(anthropic.MessageContentSource{
					Type:      anthropic.MessagesContentSourceTypeBase64,
					MediaType: img.MediaType,
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				}))
			}
			content = append(content, anthropic.NewTextMessageContent(nonEmpty(m.Content, "(empty)")))
			push(anthropic.RoleUser, content...)
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if m.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(m.Content))
			}
			for _, tc := range m.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(encodeArgs(tc.Args))))
			}
			if len(content) == 0 {
				content = append(content, anthropic.NewTextMessageContent("(no tool call)"))
			}
			push(anthropic.RoleAssistant, content...)
		case engine.RoleTool:
			push(anthropic.RoleUser, anthropic.NewToolResultMessageContent(m.ToolCallID, nonEmpty(m.Content, "{}"), false))
		}
	}

	var toolDefs []anthropic.ToolDefinition
	for _, ts := range toolSchemas {
		schema, err := parseSchema(ts)
		if err != nil {
			return anthropic.MessagesRequest{}, err
		}
		toolDefs = append(toolDefs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: schema,
		})
	}

	maxTokens := defaultMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	temperature := opts.Temperature

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(modelName),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if system != "" {
		req.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: system}}
	}
	if len(toolDefs) > 0 {
		req.Tools = toolDefs
		if opts.ToolChoice != "" {
			req.ToolChoice = &anthropic.ToolChoice{Type: "tool", Name: opts.ToolChoice}
		} else {
			req.ToolChoice = &anthropic.ToolChoice{Type: "any"}
		}
	}
	return req, nil
}

func anthropicResponse(resp anthropic.MessagesResponse) engine.LLMResponse {
	var text string
	var toolCalls []engine.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text += *block.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil || block.Name == "" {
				continue
			}
			args, bad := decodeArgs(block.Input)
			toolCalls = append(toolCalls, engine.ToolCall{ID: block.ID, Name: block.Name, Args: args, Error: bad})
		}
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case resp.StopReason == anthropic.MessagesStopReasonMaxTokens:
		finishReason = "length"
	}

	return engine.LLMResponse{
		ID:        resp.ID,
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: text, ToolCalls: toolCalls},
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: finishReason,
	}
}
