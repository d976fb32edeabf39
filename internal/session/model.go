package session

import (
	"fmt"
	"time"

	"github.com/ChamsBouzaiene/trailblaze/internal/driver"
)

// StatusKind discriminates Status values.
type StatusKind string

const (
	StatusUnknown              StatusKind = "unknown"
	StatusStarted              StatusKind = "started"
	StatusSucceeded            StatusKind = "succeeded"
	StatusFailed               StatusKind = "failed"
	StatusCancelled            StatusKind = "cancelled"
	StatusMaxCallsLimitReached StatusKind = "max_calls_limit_reached"
)

// Status is a session lifecycle state. Which fields are set depends on Kind.
type Status struct {
	Kind StatusKind `json:"kind"`

	// Started
	TestMethod string             `json:"testMethod,omitempty"`
	TestClass  string             `json:"testClass,omitempty"`
	Device     *driver.DeviceInfo `json:"device,omitempty"`

	// Ended
	DurationMs int64  `json:"durationMs,omitempty"`
	Message    string `json:"message,omitempty"`
	MaxCalls   int    `json:"maxCalls,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

func Started(testMethod, testClass string, device driver.DeviceInfo) Status {
	return Status{Kind: StatusStarted, TestMethod: testMethod, TestClass: testClass, Device: &device}
}

func Succeeded(d time.Duration) Status {
	return Status{Kind: StatusSucceeded, DurationMs: d.Milliseconds()}
}

func Failed(d time.Duration, message string) Status {
	return Status{Kind: StatusFailed, DurationMs: d.Milliseconds(), Message: message}
}

func Cancelled(d time.Duration, message string) Status {
	return Status{Kind: StatusCancelled, DurationMs: d.Milliseconds(), Message: message}
}

func MaxCallsLimitReached(d time.Duration, info MaxCallsInfo) Status {
	return Status{
		Kind:       StatusMaxCallsLimitReached,
		DurationMs: d.Milliseconds(),
		MaxCalls:   info.MaxCalls,
		Prompt:     info.Prompt,
		Message:    info.String(),
	}
}

// IsEnded reports whether s is a terminal status.
func (s Status) IsEnded() bool {
	switch s.Kind {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusMaxCallsLimitReached:
		return true
	}
	return false
}

func (s Status) String() string {
	switch {
	case s.Kind == StatusStarted:
		return fmt.Sprintf("started %s.%s", s.TestClass, s.TestMethod)
	case s.IsEnded() && s.Message != "":
		return fmt.Sprintf("%s after %dms: %s", s.Kind, s.DurationMs, s.Message)
	case s.IsEnded():
		return fmt.Sprintf("%s after %dms", s.Kind, s.DurationMs)
	default:
		return string(s.Kind)
	}
}

// MaxCallsInfo records which prompt exhausted the call budget.
type MaxCallsInfo struct {
	MaxCalls int    `json:"maxCalls"`
	Prompt   string `json:"prompt"`
}

func (m MaxCallsInfo) String() string {
	return fmt.Sprintf("max calls limit of %d reached for prompt %q", m.MaxCalls, m.Prompt)
}

// Session is one execution of a trail.
type Session struct {
	ID        string            `json:"id"`
	Device    driver.DeviceInfo `json:"device"`
	Title     string            `json:"title,omitempty"`
	Status    Status            `json:"status"`
	StartedAt time.Time         `json:"startedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
