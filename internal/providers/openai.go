package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
)

// OpenAIClient implements engine.LLMClient on the Chat Completions API. It
// also serves OpenAI-compatible endpoints through baseURL.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewOpenAIClient creates a client for the given endpoint.
func NewOpenAIClient(apiKey, modelName, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		model:   modelName,
		baseURL: baseURL,
	}, nil
}

// Chat implements engine.LLMClient.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if modelName == "" {
		modelName = c.model
	}
	req, err := openaiRequest(modelName, messages, toolSchemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0:
			httpStatus = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0:
			httpStatus = reqErr.HTTPStatusCode
		}
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	return openaiResponse(resp)
}

func openaiRequest(modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (openai.ChatCompletionRequest, error) {
	system, rest := splitSystem(messages)
	rest = dropOrphanToolResults(rest)

	msgs := make([]openai.ChatCompletionMessage, 0, len(rest)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range rest {
		switch m.Role {
		case engine.RoleUser:
			msgs = append(msgs, openaiUserMessage(m))
		case engine.RoleAssistant:
			var toolCalls []openai.ToolCall
			for _, tc := range m.ToolCalls {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(encodeArgs(tc.Args)),
					},
				})
			}
			// Some compatible servers serialize "" as null and reject it.
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   nonEmpty(m.Content, " "),
				ToolCalls: toolCalls,
			})
		case engine.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
				Content:    nonEmpty(m.Content, "{}"),
			})
		}
	}

	var tools []openai.Tool
	for _, ts := range toolSchemas {
		schema, err := parseSchema(ts)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schema,
			},
		})
	}

	temperature := opts.Temperature
	req := openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    msgs,
		Temperature: &temperature,
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if len(tools) > 0 {
		req.Tools = tools
		if opts.ToolChoice != "" {
			req.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: opts.ToolChoice},
			}
		} else {
			req.ToolChoice = "required"
		}
	}
	return req, nil
}

func openaiUserMessage(m engine.ChatMessage) openai.ChatCompletionMessage {
	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: nonEmpty(m.Content, "(empty)")}
	}
	parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", img.MediaType, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: nonEmpty(m.Content, "(empty)")})
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func openaiResponse(resp openai.ChatCompletionResponse) (engine.LLMResponse, error) {
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, engine.WrapLLMError(errors.New("empty response from OpenAI"), 0, "")
	}
	choice := resp.Choices[0]

	var toolCalls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args, bad := decodeArgs([]byte(tc.Function.Arguments))
		toolCalls = append(toolCalls, engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args, Error: bad})
	}
	toolCalls = toolCallIDs(toolCalls, "call")

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case choice.FinishReason == openai.FinishReasonLength:
		finishReason = "length"
	case choice.FinishReason == openai.FinishReasonContentFilter:
		finishReason = "content_filter"
	}

	return engine.LLMResponse{
		ID:        resp.ID,
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: choice.Message.Content, ToolCalls: toolCalls},
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}
