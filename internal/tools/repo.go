package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Schema is what a provider needs to offer a tool for function calling.
type Schema struct {
	Name        string
	Description string
	JSONSchema  string
}

// Repo is the per-run catalog of tool variants. It is read-mostly; SetActive
// is the one mutation allowed once a run starts and must be called between
// tool executions.
type Repo struct {
	mu     sync.RWMutex
	descs  map[ToolName]Descriptor
	custom map[ToolName]bool
	// active restricts the LLM-offered set; nil offers every eligible tool.
	active map[ToolName]bool
}

// NewRepo creates a repo holding descs.
func NewRepo(descs ...Descriptor) (*Repo, error) {
	r := &Repo{
		descs:  make(map[ToolName]Descriptor),
		custom: make(map[ToolName]bool),
	}
	if err := r.Register(descs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds built-in descriptors. Names must be unique.
func (r *Repo) Register(descs ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(false, descs)
}

// RegisterCustom adds app-specific descriptors supplied by the test author.
func (r *Repo) RegisterCustom(descs ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(true, descs)
}

func (r *Repo) registerLocked(custom bool, descs []Descriptor) error {
	for _, d := range descs {
		if _, err := NewToolName(string(d.Name)); err != nil {
			return err
		}
		if d.Decode == nil {
			return fmt.Errorf("tool %s: missing decoder", d.Name)
		}
		if _, dup := r.descs[d.Name]; dup {
			return fmt.Errorf("tool %s already registered", d.Name)
		}
		r.descs[d.Name] = d
		if custom {
			r.custom[d.Name] = true
		}
	}
	return nil
}

// Resolve returns the descriptor registered under name.
func (r *Repo) Resolve(name ToolName) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[name]
	return d, ok
}

// ForLLM returns the descriptors offered to the model, sorted by name.
func (r *Repo) ForLLM() []Descriptor {
	return r.filter(func(d Descriptor) bool {
		return d.OfferedToLLM() && (r.active == nil || r.active[d.Name])
	})
}

// Static returns descriptors usable only from static trail content and replay.
func (r *Repo) Static() []Descriptor {
	return r.filter(func(d Descriptor) bool { return !d.Flags.ForLLM })
}

// Custom returns the author-supplied descriptors.
func (r *Repo) Custom() []Descriptor {
	return r.filter(func(d Descriptor) bool { return r.custom[d.Name] })
}

// All returns every registered descriptor.
func (r *Repo) All() []Descriptor {
	return r.filter(func(Descriptor) bool { return true })
}

func (r *Repo) filter(keep func(Descriptor) bool) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, d := range r.descs {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetActive switches the LLM-offered tool set to names. An empty list
// restores the full set.
func (r *Repo) SetActive(names []ToolName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.active = nil
		return nil
	}
	active := make(map[ToolName]bool, len(names))
	for _, n := range names {
		d, ok := r.descs[n]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTool, n)
		}
		if !d.OfferedToLLM() {
			return fmt.Errorf("tool %s is not offered to the model", n)
		}
		active[n] = true
	}
	r.active = active
	return nil
}

// Schemas returns provider schemas for the LLM-offered set.
func (r *Repo) Schemas() []Schema {
	descs := r.ForLLM()
	out := make([]Schema, 0, len(descs))
	for _, d := range descs {
		out = append(out, Schema{Name: string(d.Name), Description: d.Description, JSONSchema: d.JSONSchema()})
	}
	return out
}

// Codec returns the serialization context bound to this repo.
func (r *Repo) Codec() *Codec {
	return &Codec{repo: r}
}

// Executor runs tools against a bound execution context.
type Executor struct {
	repo     *Repo
	provider ContextProvider
}

// Executable binds the repo to a runtime context provider.
func (r *Repo) Executable(provider ContextProvider) *Executor {
	return &Executor{repo: r, provider: provider}
}

// Run executes an already decoded tool.
func (e *Executor) Run(ctx context.Context, t Tool) Result {
	return t.Execute(ctx, e.provider())
}

// Call resolves name, decodes args and runs the tool. Resolution and
// decoding problems come back as failed results, never as panics.
func (e *Executor) Call(ctx context.Context, name ToolName, args Args) (Tool, Result) {
	t, err := e.repo.Codec().Decode(name, args)
	if err != nil {
		return nil, Failure(err)
	}
	return t, e.Run(ctx, t)
}
