package trail

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/trailblaze/internal/maestro"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
)

// SyntaxError reports a malformed trail with its source line.
type SyntaxError struct {
	Line int
	Err  error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("trail line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("trail: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

func syntaxErr(n *yaml.Node, format string, args ...any) error {
	return &SyntaxError{Line: n.Line, Err: fmt.Errorf(format, args...)}
}

// Decode parses a trail, reconstructing tools through codec.
func Decode(r io.Reader, codec *tools.Codec) ([]Item, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &SyntaxError{Err: err}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return nil, syntaxErr(root, "top level must be a sequence of items")
	}

	items := make([]Item, 0, len(root.Content))
	for _, n := range root.Content {
		it, err := decodeItem(n, codec)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// DecodeBytes parses a trail held in memory.
func DecodeBytes(data []byte, codec *tools.Codec) ([]Item, error) {
	return Decode(bytes.NewReader(data), codec)
}

func decodeItem(n *yaml.Node, codec *tools.Codec) (Item, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, syntaxErr(n, "item must be a single-key mapping of config, prompts, tools or maestro")
	}
	key, value := n.Content[0], n.Content[1]
	switch key.Value {
	case keyConfig:
		var c ConfigItem
		if err := value.Decode(&c); err != nil {
			return nil, syntaxErr(value, "config: %v", err)
		}
		return c, nil
	case keyPrompts:
		if value.Kind != yaml.SequenceNode {
			return nil, syntaxErr(value, "prompts must be a sequence")
		}
		steps := make([]PromptStep, 0, len(value.Content))
		for _, sn := range value.Content {
			s, err := decodeStep(sn, codec)
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		}
		return PromptsItem{Steps: steps}, nil
	case keyTools:
		ws, err := decodeTools(value, codec)
		if err != nil {
			return nil, err
		}
		return ToolsItem{Tools: ws}, nil
	case keyMaestro:
		var cmds []maestro.Command
		if err := value.Decode(&cmds); err != nil {
			return nil, &SyntaxError{Line: value.Line, Err: err}
		}
		return MaestroItem{Commands: cmds}, nil
	default:
		return nil, syntaxErr(key, "unknown item %q", key.Value)
	}
}

func decodeStep(n *yaml.Node, codec *tools.Codec) (PromptStep, error) {
	if n.Kind != yaml.MappingNode {
		return PromptStep{}, syntaxErr(n, "prompt step must be a mapping")
	}
	s := PromptStep{Recordable: true}
	for i := 0; i < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		switch k.Value {
		case string(KindStep), string(KindVerify):
			if s.Kind != "" {
				return PromptStep{}, syntaxErr(k, "prompt step has both %s and %s", s.Kind, k.Value)
			}
			s.Kind = StepKind(k.Value)
			s.Text = v.Value
		case "recordable":
			if err := v.Decode(&s.Recordable); err != nil {
				return PromptStep{}, syntaxErr(v, "recordable: %v", err)
			}
		case "recording":
			rec, err := decodeRecording(v, codec)
			if err != nil {
				return PromptStep{}, err
			}
			s.Recording = rec
		default:
			return PromptStep{}, syntaxErr(k, "unknown prompt step key %q", k.Value)
		}
	}
	if s.Kind == "" {
		return PromptStep{}, syntaxErr(n, "prompt step needs a step or verify text")
	}
	return s, nil
}

func decodeRecording(n *yaml.Node, codec *tools.Codec) (*Recording, error) {
	if n.Kind != yaml.MappingNode {
		return nil, syntaxErr(n, "recording must be a mapping")
	}
	rec := &Recording{Tools: []ToolWrapper{}}
	for i := 0; i < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Value != keyTools {
			return nil, syntaxErr(k, "unknown recording key %q", k.Value)
		}
		ws, err := decodeTools(v, codec)
		if err != nil {
			return nil, err
		}
		rec.Tools = ws
	}
	return rec, nil
}

func decodeTools(n *yaml.Node, codec *tools.Codec) ([]ToolWrapper, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, syntaxErr(n, "tools must be a sequence")
	}
	out := make([]ToolWrapper, 0, len(n.Content))
	for _, tn := range n.Content {
		w, err := decodeTool(tn, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// decodeTool reads `name: {param: value}`; a bare `name` means no params.
func decodeTool(n *yaml.Node, codec *tools.Codec) (ToolWrapper, error) {
	var (
		name  string
		value *yaml.Node
	)
	switch {
	case n.Kind == yaml.ScalarNode:
		name = n.Value
	case n.Kind == yaml.MappingNode && len(n.Content) == 2:
		name, value = n.Content[0].Value, n.Content[1]
	default:
		return ToolWrapper{}, syntaxErr(n, "tool must be a single-key mapping")
	}
	toolName, err := tools.NewToolName(name)
	if err != nil {
		return ToolWrapper{}, syntaxErr(n, "%v", err)
	}

	args := tools.Args{}
	if value != nil && !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		if value.Kind != yaml.MappingNode {
			return ToolWrapper{}, syntaxErr(value, "params of %s must be a mapping", name)
		}
		if err := value.Decode(&args); err != nil {
			return ToolWrapper{}, syntaxErr(value, "params of %s: %v", name, err)
		}
	}
	t, err := codec.Decode(toolName, args)
	if err != nil {
		return ToolWrapper{}, &SyntaxError{Line: n.Line, Err: err}
	}
	return ToolWrapper{Name: toolName, Tool: t}, nil
}

// Encode writes items as trail YAML.
func Encode(w io.Writer, items []Item, codec *tools.Codec) error {
	root := &yaml.Node{Kind: yaml.SequenceNode}
	for _, it := range items {
		value, err := encodeItem(it, codec)
		if err != nil {
			return err
		}
		root.Content = append(root.Content, mapping(it.Key(), value))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode trail: %w", err)
	}
	return enc.Close()
}

// EncodeBytes renders items to a byte slice.
func EncodeBytes(items []Item, codec *tools.Codec) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, items, codec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeItem(it Item, codec *tools.Codec) (*yaml.Node, error) {
	switch v := it.(type) {
	case ConfigItem:
		return encodeValue(v)
	case PromptsItem:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, s := range v.Steps {
			sn, err := encodeStep(s, codec)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, sn)
		}
		return seq, nil
	case ToolsItem:
		return encodeTools(v.Tools, codec)
	case MaestroItem:
		return encodeValue(v.Commands)
	default:
		return nil, fmt.Errorf("encode trail: unsupported item %T", it)
	}
}

func encodeStep(s PromptStep, codec *tools.Codec) (*yaml.Node, error) {
	kind := s.Kind
	if kind == "" {
		kind = KindStep
	}
	n := mapping(string(kind), scalar(s.Text))
	if !s.Recordable {
		n.Content = append(n.Content, scalar("recordable"), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"})
	}
	if s.Recording != nil {
		ts, err := encodeTools(s.Recording.Tools, codec)
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, scalar("recording"), mapping(keyTools, ts))
	}
	return n, nil
}

func encodeTools(ws []ToolWrapper, codec *tools.Codec) (*yaml.Node, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, w := range ws {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		name, _ := codec.Encode(w.Tool)
		params := &yaml.Node{Kind: yaml.MappingNode}
		for _, p := range w.Tool.Params() {
			v, err := encodeValue(p.Value)
			if err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", name, p.Name, err)
			}
			params.Content = append(params.Content, scalar(p.Name), v)
		}
		if len(params.Content) == 0 {
			params.Style = yaml.FlowStyle
		}
		seq.Content = append(seq.Content, mapping(string(name), params))
	}
	return seq, nil
}

func encodeValue(v any) (*yaml.Node, error) {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func mapping(key string, value *yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{scalar(key), value}}
}
