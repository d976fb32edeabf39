// Package status provides the tool the model calls to report progress on
// its objective. It is the loop's only completion signal.
package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// ObjectiveStatusName is the registered tool name.
const ObjectiveStatusName tools.ToolName = "objectiveStatus"

// State is the reported objective state.
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ObjectiveStatus reports whether the current objective is done.
type ObjectiveStatus struct {
	State       State
	Explanation string
}

func (t ObjectiveStatus) Name() tools.ToolName { return ObjectiveStatusName }

func (t ObjectiveStatus) Params() []tools.Param {
	return []tools.Param{
		{Name: "status", Value: string(t.State)},
		{Name: "explanation", Value: t.Explanation},
	}
}

func (t ObjectiveStatus) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	res := tools.Success("%s: %s", t.State, t.Explanation)
	switch t.State {
	case StateCompleted:
		res.Signal = tools.SignalObjectiveComplete
	case StateFailed:
		res.Signal = tools.SignalObjectiveFailed
	}
	return res
}

// Descriptor registers objectiveStatus. It is never recorded: replays
// complete a step by exhausting its recording.
var Descriptor = tools.Descriptor{
	Name: ObjectiveStatusName,
	Description: `Report the state of the current objective.
Call with status "completed" once every part of the objective is done and verified on screen,
"failed" when it cannot be achieved, or "in_progress" to explain what you will do next.`,
	Params: []tools.ParamSpec{
		{Name: "status", Type: tools.TypeString, Required: true, Enum: []string{string(StateInProgress), string(StateCompleted), string(StateFailed)}},
		{Name: "explanation", Type: tools.TypeString, Required: true, Description: "What was observed that justifies the status."},
	},
	Flags: tools.Flags{ForLLM: true},
	Decode: func(a tools.Args) (tools.Tool, error) {
		s := State(strings.ToLower(a.String("status")))
		switch s {
		case StateInProgress, StateCompleted, StateFailed:
		default:
			return nil, fmt.Errorf("invalid status %q", s)
		}
		return ObjectiveStatus{State: s, Explanation: a.String("explanation")}, nil
	},
}
