package engine

import (
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/agent"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// ReconstructHistory renders a recording result as the assistant tool calls
// and tool results a model would have produced, so a live run can continue
// from where a replay stopped.
func ReconstructHistory(r agent.PromptRecordingResult) []ChatMessage {
	list := r.Tools()
	if len(list) == 0 {
		return nil
	}

	calls := make([]ToolCall, len(list))
	for i, t := range list {
		calls[i] = ToolCall{
			ID:   fmt.Sprintf("replay_%d", i+1),
			Name: t.Name().String(),
			Args: tools.ParamsToArgs(t.Params()),
		}
	}
	msgs := []ChatMessage{{Role: RoleAssistant, ToolCalls: calls}}

	var failed *agent.RecordingFailure
	if f, ok := r.(agent.RecordingFailure); ok {
		failed = &f
	}
	for i, t := range list {
		content := "success"
		if failed != nil && i == len(list)-1 && failed.Failed != nil {
			content = failed.Result.String()
		}
		msgs = append(msgs, ChatMessage{
			Role:       RoleTool,
			Name:       t.Name().String(),
			ToolCallID: calls[i].ID,
			Content:    content,
		})
	}
	return msgs
}

// toolResultContent is the tool message sent back to the model.
func toolResultContent(t tools.Tool, res tools.Result) string {
	if res.IsSuccess() {
		if res.Message == "" {
			return "success"
		}
		return "success: " + res.Message
	}
	return fmt.Sprintf("failed: %s. The call %s(%s) did not succeed; adjust and try again.",
		res.Message, t.Name(), tools.ArgsJSON(t))
}
