package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepState is the coarse state of a prompt step.
type StepState string

const (
	StateInProgress StepState = "in_progress"
	StateSuccess    StepState = "success"
	StateFailure    StepState = "failure"
)

// FailureReason is why a step failed.
type FailureReason string

const (
	ReasonNone                   FailureReason = ""
	ReasonObjectiveFailed        FailureReason = "objective_failed"
	ReasonMaxCallsReached        FailureReason = "max_calls_reached"
	ReasonSessionCancelled       FailureReason = "session_cancelled"
	ReasonToolExecutionException FailureReason = "tool_execution_exception"
)

// Outcome is a step state with its failure details.
type Outcome struct {
	State       StepState
	Reason      FailureReason
	Explanation string
	Err         error
}

// ObjectiveComplete is the successful outcome.
func ObjectiveComplete(explanation string) Outcome {
	return Outcome{State: StateSuccess, Explanation: explanation}
}

// Failure builds a failed outcome. err may be nil.
func Failure(reason FailureReason, explanation string, err error) Outcome {
	if explanation == "" && err != nil {
		explanation = err.Error()
	}
	return Outcome{State: StateFailure, Reason: reason, Explanation: explanation, Err: err}
}

func (o Outcome) String() string {
	switch o.State {
	case StateFailure:
		return fmt.Sprintf("failure(%s): %s", o.Reason, o.Explanation)
	case StateSuccess:
		return "success"
	default:
		return string(o.State)
	}
}

// PromptStepStatus tracks one prompt step from its first model call to a
// terminal outcome. Once finished it never changes. It is owned by the
// goroutine running the step.
type PromptStepStatus struct {
	taskID    string
	prompt    string
	window    int
	turns     [][]ChatMessage
	calls     int
	startedAt time.Time
	duration  time.Duration
	outcome   Outcome
	now       func() time.Time
}

// NewPromptStepStatus starts tracking prompt. window is the number of recent
// turns Recent returns.
func NewPromptStepStatus(prompt string, window int) *PromptStepStatus {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	s := &PromptStepStatus{
		taskID:  uuid.NewString(),
		prompt:  prompt,
		window:  window,
		outcome: Outcome{State: StateInProgress},
		now:     time.Now,
	}
	s.startedAt = s.now()
	return s
}

func (s *PromptStepStatus) TaskID() string       { return s.taskID }
func (s *PromptStepStatus) Prompt() string       { return s.prompt }
func (s *PromptStepStatus) CallCount() int       { return s.calls }
func (s *PromptStepStatus) StartedAt() time.Time { return s.startedAt }
func (s *PromptStepStatus) Outcome() Outcome     { return s.outcome }

// Duration is the elapsed time, frozen once the step finishes.
func (s *PromptStepStatus) Duration() time.Duration {
	if s.IsFinished() {
		return s.duration
	}
	return s.now().Sub(s.startedAt)
}

// IsFinished reports whether the step reached a terminal outcome.
func (s *PromptStepStatus) IsFinished() bool {
	return s.outcome.State != StateInProgress
}

// IncrementCalls counts one model call against the budget.
func (s *PromptStepStatus) IncrementCalls() {
	s.calls++
}

// AddTurn appends one exchange with the model.
func (s *PromptStepStatus) AddTurn(msgs ...ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	s.turns = append(s.turns, append([]ChatMessage(nil), msgs...))
}

// Recent returns the messages of the last window turns.
func (s *PromptStepStatus) Recent() []ChatMessage {
	start := len(s.turns) - s.window
	if start < 0 {
		start = 0
	}
	return flatten(s.turns[start:])
}

// History returns every message of the step.
func (s *PromptStepStatus) History() []ChatMessage {
	return flatten(s.turns)
}

// Transition moves the step to o. It returns false and changes nothing when
// the step already finished or o is not terminal.
func (s *PromptStepStatus) Transition(o Outcome) bool {
	if s.IsFinished() || o.State == StateInProgress {
		return false
	}
	s.outcome = o
	s.duration = s.now().Sub(s.startedAt)
	return true
}

func flatten(turns [][]ChatMessage) []ChatMessage {
	var out []ChatMessage
	for _, t := range turns {
		out = append(out, t...)
	}
	return out
}
