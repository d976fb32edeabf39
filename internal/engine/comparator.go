package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/trailblaze/internal/prompts"
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
)

const answerToolName = "answer"

var booleanAnswerSchema = ToolSchema{
	Name:        answerToolName,
	Description: "Answer the question about the screen.",
	JSONSchema: `{"type":"object","properties":{` +
		`"result":{"type":"boolean"},` +
		`"reason":{"type":"string"}},` +
		`"required":["result","reason"],"additionalProperties":false}`,
}

var stringAnswerSchema = ToolSchema{
	Name:        answerToolName,
	Description: "Answer the question about the screen.",
	JSONSchema: `{"type":"object","properties":{` +
		`"result":{"type":"string"}},` +
		`"required":["result"],"additionalProperties":false}`,
}

// LLMComparator answers fuzzy questions about a screen with one model call
// each. It implements tools.ElementComparator.
type LLMComparator struct {
	llm      LLMClient
	model    string
	opts     ChatOptions
	retry    RetryPolicy
	renderer *prompts.Renderer
}

// NewLLMComparator creates a comparator asking model through llm.
func NewLLMComparator(llm LLMClient, model string, retry RetryPolicy) *LLMComparator {
	return &LLMComparator{
		llm:      llm,
		model:    model,
		opts:     ChatOptions{Temperature: 0, MaxOutputTokens: 256, ToolChoice: answerToolName},
		retry:    retry,
		renderer: prompts.NewRenderer(nil),
	}
}

// EvaluateBoolean decides whether statement holds on screen.
func (c *LLMComparator) EvaluateBoolean(ctx context.Context, screen *screenstate.ScreenState, statement string) (bool, string, error) {
	question, err := c.renderer.Assert(statement)
	if err != nil {
		return false, "", err
	}
	args, text, err := c.ask(ctx, screen, question, booleanAnswerSchema)
	if err != nil {
		return false, "", err
	}
	if args != nil {
		reason, _ := args["reason"].(string)
		switch v := args["result"].(type) {
		case bool:
			return v, reason, nil
		case string:
			if b, perr := strconv.ParseBool(v); perr == nil {
				return b, reason, nil
			}
		}
		return false, "", fmt.Errorf("comparator: answer has no boolean result")
	}
	// Some models answer in text despite the forced tool.
	first := strings.ToLower(strings.Fields(text + " ?")[0])
	switch strings.Trim(first, ".,:") {
	case "true", "yes":
		return true, text, nil
	case "false", "no":
		return false, text, nil
	}
	return false, "", fmt.Errorf("comparator: unusable answer %q", text)
}

// EvaluateString reads the value described by query from screen.
func (c *LLMComparator) EvaluateString(ctx context.Context, screen *screenstate.ScreenState, query string) (string, error) {
	question, err := c.renderer.Extract(query)
	if err != nil {
		return "", err
	}
	args, text, err := c.ask(ctx, screen, question, stringAnswerSchema)
	if err != nil {
		return "", err
	}
	if args != nil {
		if v, ok := args["result"]; ok && v != nil {
			return fmt.Sprint(v), nil
		}
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

func (c *LLMComparator) ask(ctx context.Context, screen *screenstate.ScreenState, question string, schema ToolSchema) (map[string]any, string, error) {
	if screen == nil {
		return nil, "", fmt.Errorf("comparator: no screen captured")
	}
	msgs := []ChatMessage{userScreenMessage(c.renderer, screen, question)}
	resp, err := RetryLLMCall(ctx, c.retry, c.llm, c.model, msgs, []ToolSchema{schema}, c.opts, nil)
	if err != nil {
		return nil, "", fmt.Errorf("comparator: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Name == answerToolName && tc.Error == "" {
			return tc.Args, "", nil
		}
	}
	return nil, resp.Assistant.Content, nil
}

// userScreenMessage renders a capture plus text as one user message.
func userScreenMessage(r *prompts.Renderer, screen *screenstate.ScreenState, text string) ChatMessage {
	desc, err := r.Screen(screen.DeviceWidth(), screen.DeviceHeight(), screen.HierarchyText())
	if err != nil {
		desc = screen.HierarchyText()
	}
	msg := ChatMessage{Role: RoleUser, Content: desc + "\n\n" + text}
	if shot := screen.Screenshot(); len(shot) > 0 {
		msg.Images = []Image{{MediaType: "image/png", Data: shot}}
	}
	return msg
}
