// Package engine drives prompt steps: it asks the model for tool calls,
// executes them through the agent, replays recordings and runs whole trails.
package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

var (
	// ErrUnknownTool is the cause of a tool call naming an unregistered tool.
	ErrUnknownTool = tools.ErrUnknownTool
	// ErrEmptyToolCall means the model answered without calling a tool.
	ErrEmptyToolCall = errors.New("model response contained no tool call")
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// ErrorKind is the category of a provider error.
type ErrorKind string

const (
	KindRateLimit      ErrorKind = "rate_limit"
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindAuth           ErrorKind = "auth"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindServer         ErrorKind = "server"
	KindUnknown        ErrorKind = "unknown"
)

// EngineError wraps provider errors with classification metadata.
type EngineError struct {
	Err        error
	Kind       ErrorKind
	Class      RetryClass
	HTTPStatus int    // HTTP status code if applicable
	RetryAfter string // Retry-After header value if present
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Kind)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) IsRateLimit() bool { return e.Kind == KindRateLimit }
func (e *EngineError) IsAuth() bool      { return e.Kind == KindAuth }

// ClassifyError determines the kind of a provider error. Errors already
// wrapped by WrapLLMError keep their kind; everything else is matched on
// its message.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Kind != "" {
		return engineErr.Kind
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "429", "rate limit", "too many requests"):
		return KindRateLimit
	case containsAny(errStr, "401", "403", "unauthorized", "forbidden", "invalid api key", "authentication failed"):
		return KindAuth
	case containsAny(errStr, "500", "502", "503", "504", "529", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout", "overloaded"):
		return KindServer
	case containsAny(errStr, "context deadline exceeded", "deadline exceeded", "timeout"):
		return KindTimeout
	case containsAny(errStr, "connection reset", "connection refused", "no such host", "network", "dns",
		"temporary failure", "eof"):
		return KindNetwork
	case containsAny(errStr, "400", "bad request", "invalid request", "malformed", "context length",
		"maximum context length", "content filter", "402", "quota", "billing"):
		return KindInvalidRequest
	}
	return KindUnknown
}

// ClassifyLLMError maps a provider error onto a retry decision.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Class != "" {
		return engineErr.Class
	}
	return retryClassFor(ClassifyError(err))
}

func retryClassFor(kind ErrorKind) RetryClass {
	switch kind {
	case KindRateLimit, KindServer, KindNetwork:
		return RetryClassRetryable
	case KindTimeout:
		return RetryClassMaybe
	default:
		return RetryClassNonRetryable
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ExtractRetryAfter extracts the Retry-After value from an error.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, engineErr.RetryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	if i := strings.Index(errStr, "retry after"); i >= 0 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[i:], "retry after %d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// WrapLLMError wraps a provider error with classification metadata.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	kind := kindForStatus(httpStatus)
	if kind == KindUnknown {
		kind = ClassifyError(err)
	}
	return &EngineError{
		Err:        err,
		Kind:       kind,
		Class:      retryClassFor(kind),
		HTTPStatus: httpStatus,
		RetryAfter: retryAfter,
	}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindInvalidRequest
	}
	return KindUnknown
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
	IsGuarded   bool // True if this was a "maybe" class error with limited retries
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// NewRetryExhaustedError creates a new RetryExhaustedError.
func NewRetryExhaustedError(err error, attempts, maxAttempts int, isGuarded bool) *RetryExhaustedError {
	return &RetryExhaustedError{
		Err:         err,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		IsGuarded:   isGuarded,
	}
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ToolExecutionError is a fatal tool failure that ended a prompt step.
type ToolExecutionError struct {
	Tool   tools.ToolName
	Args   string
	Result tools.Result
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s(%s) failed: %s", e.Tool, e.Args, e.Result.Message)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Result.Err
}

// MaxCallsReachedError ends a step whose model call budget ran out.
type MaxCallsReachedError struct {
	MaxCalls int
	Prompt   string
}

func (e *MaxCallsReachedError) Error() string {
	return fmt.Sprintf("max calls limit of %d reached for prompt %q", e.MaxCalls, e.Prompt)
}

// SessionCancelledError ends a step whose session was cancelled.
type SessionCancelledError struct {
	SessionID string
}

func (e *SessionCancelledError) Error() string {
	if e.SessionID == "" {
		return "session cancelled"
	}
	return fmt.Sprintf("session %s cancelled", e.SessionID)
}

// ReplayMismatchError reports a recorded tool that no longer works against
// the device. Successful holds the tools replayed before it.
type ReplayMismatchError struct {
	Prompt     string
	Successful []tools.Tool
	Failed     tools.Tool
	Result     tools.Result
}

func (e *ReplayMismatchError) Error() string {
	name := tools.ToolName("?")
	if e.Failed != nil {
		name = e.Failed.Name()
	}
	return fmt.Sprintf("replay of %q failed at tool %d (%s): %s",
		e.Prompt, len(e.Successful)+1, name, e.Result.Message)
}

func (e *ReplayMismatchError) Unwrap() error {
	return e.Result.Err
}
