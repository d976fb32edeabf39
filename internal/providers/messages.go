// Package providers adapts model SDKs to engine.LLMClient.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
)

// splitSystem separates the system prompt from the conversation. Several
// system messages are joined in order.
func splitSystem(messages []engine.ChatMessage) (string, []engine.ChatMessage) {
	var system []string
	rest := make([]engine.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == engine.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// dropOrphanToolResults removes tool messages that do not answer a call of
// the closest preceding assistant message. Providers reject them.
func dropOrphanToolResults(messages []engine.ChatMessage) []engine.ChatMessage {
	out := make([]engine.ChatMessage, 0, len(messages))
	open := map[string]bool{}
	for _, m := range messages {
		switch m.Role {
		case engine.RoleAssistant:
			open = map[string]bool{}
			for _, c := range m.ToolCalls {
				open[c.ID] = true
			}
		case engine.RoleTool:
			if !open[m.ToolCallID] {
				continue
			}
			delete(open, m.ToolCallID)
		}
		out = append(out, m)
	}
	return out
}

// toolCallIDs fills in missing call ids so results can be matched.
func toolCallIDs(calls []engine.ToolCall, prefix string) []engine.ToolCall {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("%s_%d", prefix, i+1)
		}
	}
	return calls
}

// decodeArgs parses a tool call's JSON arguments. A malformed payload is
// reported on the call so the model sees the error.
func decodeArgs(raw []byte) (map[string]any, string) {
	args := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return args, ""
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}, fmt.Sprintf("invalid JSON in tool arguments: %v", err)
	}
	return args, ""
}

func encodeArgs(args map[string]any) []byte {
	if len(args) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(args)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func parseSchema(s engine.ToolSchema) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s.JSONSchema), &obj); err != nil {
		return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", s.Name, err)
	}
	return obj, nil
}

// nonEmpty returns s, or def when s is blank. Several providers reject
// empty text blocks.
func nonEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// statusCoder is implemented by SDK errors that carry the HTTP status.
type statusCoder interface {
	error
	StatusCode() int
}

// extractErrorMetadata guesses the HTTP status and Retry-After value of a
// provider error from its message when the SDK does not expose them.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	var httpStatus int
	var sc statusCoder
	if errors.As(err, &sc) {
		httpStatus = sc.StatusCode()
	}

	errStr := err.Error()
	if httpStatus == 0 {
		for _, code := range []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusBadRequest,
			http.StatusPaymentRequired,
		} {
			if strings.Contains(errStr, fmt.Sprint(code)) {
				httpStatus = code
				break
			}
		}
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after:", "retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			if parts := strings.Fields(errStr[idx+len(marker):]); len(parts) > 0 {
				retryAfter = parts[0]
			}
			break
		}
	}
	return httpStatus, retryAfter
}
