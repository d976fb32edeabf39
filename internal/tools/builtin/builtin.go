// Package builtin assembles the built-in tool variants into a Repo.
package builtin

import (
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/device"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/evaluate"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/status"
)

// ToolSet selects which groups of built-in tools a run registers.
type ToolSet struct {
	Device   bool // taps, input, navigation, visibility assertions
	Evaluate bool // memory and comparator-backed assertions
	Status   bool // objectiveStatus; required for the agent loop to complete
}

// DefaultToolSet enables every group.
func DefaultToolSet() ToolSet {
	return ToolSet{Device: true, Evaluate: true, Status: true}
}

// NewRepo creates a Repo holding the selected built-in tools plus custom,
// the author-supplied extensions.
func NewRepo(set ToolSet, custom ...tools.Descriptor) (*tools.Repo, error) {
	var descs []tools.Descriptor
	if set.Device {
		descs = append(descs, device.Descriptors()...)
	}
	if set.Evaluate {
		descs = append(descs, evaluate.Descriptors()...)
	}
	if set.Status {
		descs = append(descs, status.Descriptor)
	}

	repo, err := tools.NewRepo(descs...)
	if err != nil {
		return nil, err
	}
	if len(custom) > 0 {
		if err := repo.RegisterCustom(custom...); err != nil {
			return nil, err
		}
	}
	return repo, nil
}
