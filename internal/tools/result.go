package tools

import (
	"errors"
	"fmt"
)

// Status is the outcome of a single tool execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Signal is a control instruction a tool hands back to the agent loop.
type Signal string

const (
	SignalNone              Signal = ""
	SignalObjectiveComplete Signal = "objective_complete"
	SignalObjectiveFailed   Signal = "objective_failed"
)

// ErrUnknownTool is the cause of a result for a name the registry cannot resolve.
var ErrUnknownTool = errors.New("unknown tool")

// Result is the outcome of a tool execution.
type Result struct {
	Status  Status
	Message string
	Signal  Signal
	// Fatal marks failures the model cannot recover from (transport errors,
	// lost device). Non-fatal failures are fed back to the model.
	Fatal bool
	Err   error
}

// Success returns a successful result.
func Success(format string, args ...any) Result {
	return Result{Status: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

// Failure returns a recoverable failed result.
func Failure(err error) Result {
	return Result{Status: StatusFailed, Message: err.Error(), Err: err}
}

// Failuref returns a recoverable failed result with a formatted message.
func Failuref(format string, args ...any) Result {
	return Failure(fmt.Errorf(format, args...))
}

// FatalFailure returns a failed result that ends the objective.
func FatalFailure(err error) Result {
	r := Failure(err)
	r.Fatal = true
	return r
}

// IsSuccess reports whether the execution succeeded.
func (r Result) IsSuccess() bool {
	return r.Status == StatusSuccess
}

func (r Result) String() string {
	if r.Message == "" {
		return string(r.Status)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Message)
}
