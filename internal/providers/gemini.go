package providers

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
)

// GeminiClient implements engine.LLMClient on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client for the Gemini developer API.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{client: client, model: modelName}, nil
}

// Chat implements engine.LLMClient.
func (c *GeminiClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	if modelName == "" {
		modelName = c.model
	}
	contents, config, err := geminiRequest(messages, toolSchemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code != 0 {
			httpStatus = apiErr.Code
		}
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	return geminiResponse(resp)
}

func geminiRequest(messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, rest := splitSystem(messages)
	rest = dropOrphanToolResults(rest)

	var contents []*genai.Content
	push := func(role genai.Role, parts ...*genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == string(role) {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: string(role), Parts: parts})
	}

	for _, m := range rest {
		switch m.Role {
		case engine.RoleUser:
			var parts []*genai.Part
			for _, img := range m.Images {
				parts = append(parts, genai.NewPartFromBytes(img.Data, img.MediaType))
			}
			parts = append(parts, genai.NewPartFromText(nonEmpty(m.Content, "(empty)")))
			push(genai.RoleUser, parts...)
		case engine.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText("(no tool call)"))
			}
			push(genai.RoleModel, parts...)
		case engine.RoleTool:
			push(genai.RoleUser, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}})
		}
	}

	temperature := opts.Temperature
	config := &genai.GenerateContentConfig{Temperature: &temperature}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	if len(toolSchemas) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(toolSchemas))
		for _, ts := range toolSchemas {
			schema, err := parseSchema(ts)
			if err != nil {
				return nil, nil, err
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 ts.Name,
				Description:          ts.Description,
				ParametersJsonSchema: schema,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		calling := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}
		if opts.ToolChoice != "" {
			calling.AllowedFunctionNames = []string{opts.ToolChoice}
		}
		config.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: calling}
	}
	return contents, config, nil
}

func geminiResponse(resp *genai.GenerateContentResponse) (engine.LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return engine.LLMResponse{}, engine.WrapLLMError(errors.New("empty response from Gemini"), 0, "")
	}
	cand := resp.Candidates[0]

	var text string
	var toolCalls []engine.ToolCall
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, engine.ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: args})
		case p.Text != "" && !p.Thought:
			text += p.Text
		}
	}
	toolCalls = toolCallIDs(toolCalls, "gemini_call")

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		finishReason = "length"
	case cand.FinishReason == genai.FinishReasonSafety:
		finishReason = "content_filter"
	}

	var usage engine.Usage
	if u := resp.UsageMetadata; u != nil {
		usage = engine.Usage{
			Prompt:     int(u.PromptTokenCount),
			Completion: int(u.CandidatesTokenCount),
			Total:      int(u.TotalTokenCount),
		}
	}

	return engine.LLMResponse{
		ID:           resp.ResponseID,
		Assistant:    engine.ChatMessage{Role: engine.RoleAssistant, Content: text, ToolCalls: toolCalls},
		ToolCalls:    toolCalls,
		Usage:        usage,
		FinishReason: finishReason,
	}, nil
}
