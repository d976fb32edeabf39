package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Codec converts tools to and from their name-tagged wire form. It is
// constructed from a Repo so custom tool sets decode without any global state.
type Codec struct {
	repo *Repo
}

// Decode reconstructs the concrete tool registered under name.
func (c *Codec) Decode(name ToolName, args Args) (Tool, error) {
	d, ok := c.repo.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = Args{}
	}
	args = coerceStrings(d.Params, args)
	if err := d.ValidateArgs(args); err != nil {
		return nil, err
	}
	t, err := d.Decode(args)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if t.Name() != name {
		return nil, fmt.Errorf("decoder for %s produced %s", name, t.Name())
	}
	return t, nil
}

// coerceStrings turns numeric scalars given for string params into their
// decimal text, so an unquoted `text: 1` in a trail decodes. args is not
// modified.
func coerceStrings(specs []ParamSpec, args Args) Args {
	var out Args
	for _, p := range specs {
		if p.Type != TypeString {
			continue
		}
		var text string
		switch v := args[p.Name].(type) {
		case int:
			text = strconv.Itoa(v)
		case int64:
			text = strconv.FormatInt(v, 10)
		case uint64:
			text = strconv.FormatUint(v, 10)
		case float64:
			text = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			text = v.String()
		default:
			continue
		}
		if out == nil {
			out = make(Args, len(args))
			for k, v := range args {
				out[k] = v
			}
		}
		out[p.Name] = text
	}
	if out == nil {
		return args
	}
	return out
}

// Encode returns the tool's name and argument map.
func (c *Codec) Encode(t Tool) (ToolName, Args) {
	return t.Name(), ParamsToArgs(t.Params())
}

// ArgsJSON renders the tool's parameters as a JSON object in declaration order.
func ArgsJSON(t Tool) string {
	params := t.Params()
	buf := []byte{'{'}
	for i, p := range params {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, _ := json.Marshal(p.Name)
		v, err := json.Marshal(p.Value)
		if err != nil {
			v, _ = json.Marshal(fmt.Sprint(p.Value))
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	buf = append(buf, '}')
	return string(buf)
}

// Recordable reports whether t may be captured into a recording.
func (c *Codec) Recordable(t Tool) bool {
	d, ok := c.repo.Resolve(t.Name())
	return ok && d.Flags.Recordable
}
