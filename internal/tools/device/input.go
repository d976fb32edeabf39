package device

import (
	"context"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

const (
	InputTextName    tools.ToolName = "inputText"
	EraseTextName    tools.ToolName = "eraseText"
	HideKeyboardName tools.ToolName = "hideKeyboard"
)

// InputText types into the focused field.
type InputText struct {
	Text string
}

func (t InputText) Name() tools.ToolName { return InputTextName }

func (t InputText) Params() []tools.Param {
	return []tools.Param{{Name: "text", Value: t.Text}}
}

func (t InputText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.InputText(ec.Interpolate(t.Text)))
}

var inputTextDescriptor = tools.Descriptor{
	Name:        InputTextName,
	Description: "Type `text` into the currently focused input field. Tap the field first if it is not focused.",
	Params:      []tools.ParamSpec{textParam("The text to type. {{name}} inserts a remembered value.")},
	Flags:       llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		return InputText{Text: a.String("text")}, nil
	},
}

// EraseText deletes characters from the focused field; zero erases all.
type EraseText struct {
	CharactersToErase int
}

func (t EraseText) Name() tools.ToolName { return EraseTextName }

func (t EraseText) Params() []tools.Param {
	if t.CharactersToErase == 0 {
		return nil
	}
	return []tools.Param{{Name: "charactersToErase", Value: t.CharactersToErase}}
}

func (t EraseText) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.EraseText(t.CharactersToErase))
}

var eraseTextDescriptor = tools.Descriptor{
	Name:        EraseTextName,
	Description: "Erase characters from the focused input field. Omit `charactersToErase` to clear the field.",
	Params: []tools.ParamSpec{
		{Name: "charactersToErase", Type: tools.TypeInteger, Description: "How many characters to delete."},
	},
	Flags: llmRecordable,
	Decode: func(a tools.Args) (tools.Tool, error) {
		n, err := a.Int("charactersToErase")
		if err != nil {
			return nil, err
		}
		return EraseText{CharactersToErase: n}, nil
	},
}

// HideKeyboard dismisses the soft keyboard.
type HideKeyboard struct{}

func (HideKeyboard) Name() tools.ToolName  { return HideKeyboardName }
func (HideKeyboard) Params() []tools.Param { return nil }

func (HideKeyboard) Execute(ctx context.Context, ec *tools.ExecContext) tools.Result {
	return run(ctx, ec, maestro.HideKeyboard())
}

var hideKeyboardDescriptor = tools.Descriptor{
	Name:        HideKeyboardName,
	Description: "Hide the on-screen keyboard.",
	Flags:       llmRecordable,
	Decode:      func(tools.Args) (tools.Tool, error) { return HideKeyboard{}, nil },
}
