package agent

import (
	"github.com/ChamsBouzaiene/trailblaze/internal/screenstate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// PromptRecordingResult is the outcome of running one prompt step's tools:
// either RecordingSuccess or RecordingFailure.
type PromptRecordingResult interface {
	isPromptRecordingResult()
	// Tools returns every executed tool, including a failing one.
	Tools() []tools.Tool
}

// RecordingSuccess holds every tool the step executed.
type RecordingSuccess struct {
	Executed []tools.Tool
}

// RecordingFailure holds the tools that succeeded before Failed broke the step.
type RecordingFailure struct {
	Successful []tools.Tool
	Failed     tools.Tool
	Result     tools.Result
}

func (RecordingSuccess) isPromptRecordingResult() {}
func (RecordingFailure) isPromptRecordingResult() {}

func (r RecordingSuccess) Tools() []tools.Tool { return r.Executed }

func (r RecordingFailure) Tools() []tools.Tool {
	out := append([]tools.Tool(nil), r.Successful...)
	if r.Failed != nil {
		out = append(out, r.Failed)
	}
	return out
}

// NewPromptRecordingResult folds a RunTools outcome into a recording result.
func NewPromptRecordingResult(executed []tools.Tool, result tools.Result) PromptRecordingResult {
	if result.IsSuccess() || len(executed) == 0 {
		return RecordingSuccess{Executed: executed}
	}
	n := len(executed) - 1
	return RecordingFailure{
		Successful: append([]tools.Tool(nil), executed[:n]...),
		Failed:     executed[n],
		Result:     result,
	}
}

// RecordableForm converts executed tools into the sequence a recording
// should hold. Tools that depend on a particular capture are replaced by
// their stable equivalent; tools that are not recordable are dropped.
func RecordableForm(codec *tools.Codec, screen *screenstate.ScreenState, executed []tools.Tool) []tools.Tool {
	out := make([]tools.Tool, 0, len(executed))
	for _, t := range executed {
		if ra, ok := t.(tools.RecordableAs); ok {
			if stable, ok := ra.RecordAs(screen); ok {
				out = append(out, stable)
			}
			continue
		}
		if codec.Recordable(t) {
			out = append(out, t)
		}
	}
	return out
}
