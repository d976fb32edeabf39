// Package device provides the built-in tools that lower into device
// automation commands.
package device

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// Descriptors returns every device tool variant.
func Descriptors() []tools.Descriptor {
	return []tools.Descriptor{
		tapOnElementWithTextDescriptor,
		tapOnElementByNodeIDDescriptor,
		tapOnPointDescriptor,
		longPressOnElementWithTextDescriptor,
		tapOnElementWithAccessibilityTextDescriptor,
		inputTextDescriptor,
		eraseTextDescriptor,
		pressBackDescriptor,
		hideKeyboardDescriptor,
		swipeDescriptor,
		scrollDescriptor,
		launchAppDescriptor,
		openLinkDescriptor,
		waitForSettleDescriptor,
		assertVisibleWithTextDescriptor,
		assertNotVisibleWithTextDescriptor,
		maestroCommandDescriptor,
	}
}

// run lowers one command onto the driver. Transport errors are fatal; a
// command that ran but failed is a recoverable failure the model can see.
func run(ctx context.Context, ec *tools.ExecContext, cmd maestro.Command) tools.Result {
	if ec == nil || ec.Driver == nil {
		return tools.FatalFailure(fmt.Errorf("%s: no device driver bound", cmd.Type))
	}
	res, err := ec.Driver.Execute(ctx, cmd)
	if err != nil {
		return tools.FatalFailure(fmt.Errorf("%s: %w", cmd, err))
	}
	if ec.Logger != nil {
		ec.Logger.Debug("device command executed",
			zap.String("command", cmd.String()),
			zap.Bool("success", res.Success),
			zap.Duration("duration", res.Duration))
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "command failed"
		}
		return tools.Failuref("%s: %s", cmd, msg)
	}
	return tools.Success("%s", cmd)
}

func textParam(desc string) tools.ParamSpec {
	return tools.ParamSpec{Name: "text", Type: tools.TypeString, Required: true, Description: desc}
}

var llmRecordable = tools.Flags{ForLLM: true, Recordable: true}
