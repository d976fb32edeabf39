package device

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

const MaestroCommandName tools.ToolName = "maestroCommand"

// MaestroCommand runs one static automation command. Trails reach it
// through maestro items; the model never sees it.
type MaestroCommand struct {
	Command maestro.Command
}

func (t MaestroCommand) Name() tools.ToolName { return MaestroCommandName }

// Params holds the command in its YAML short form.
func (t MaestroCommand) Params() []tools.Param {
	data, err := yaml.Marshal(t.Command)
	if err != nil {
		return []tools.Param{{Name: "command", Value: t.Command.String()}}
	}
	return []tools.Param{{Name: "command", Value: strings.TrimSpace(string(data))}}
}

func (t MaestroCommand) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	if err := t.Command.Validate(); err != nil {
		return tools.Failure(err)
	}
	return run(ctx, ec, t.Command)
}

// MaestroCommands wraps cmds as tools.
func MaestroCommands(cmds []maestro.Command) []tools.Tool {
	out := make([]tools.Tool, len(cmds))
	for i, c := range cmds {
		out[i] = MaestroCommand{Command: c}
	}
	return out
}

var maestroCommandDescriptor = tools.Descriptor{
	Name:        MaestroCommandName,
	Description: "Run one device automation command given in YAML form.",
	Params: []tools.ParamSpec{
		{Name: "command", Type: tools.TypeString, Required: true, Description: "e.g. `launchApp: com.example.app`"},
	},
	Decode: func(a tools.Args) (tools.Tool, error) {
		var cmd maestro.Command
		if err := yaml.Unmarshal([]byte(a.String("command")), &cmd); err != nil {
			return nil, fmt.Errorf("command: %w", err)
		}
		return MaestroCommand{Command: cmd}, nil
	},
}
