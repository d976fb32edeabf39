package prompts

import "strconv"

// Renderer fills the runner's templates from a registry.
type Renderer struct {
	registry *PromptRegistry
}

// NewRenderer renders from registry, or the default registry when nil.
func NewRenderer(registry *PromptRegistry) *Renderer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Renderer{registry: registry}
}

func (r *Renderer) render(id string, vars map[string]string, extra ...string) (string, error) {
	b, err := NewLatestBuilder(r.registry, id)
	if err != nil {
		return "", err
	}
	for k, v := range vars {
		b.SetVariable(k, v)
	}
	for _, f := range extra {
		b.AddFragment(f)
	}
	return b.Build(), nil
}

// System renders the system prompt. trailContext comes from the trail's
// config item and is appended when set.
func (r *Renderer) System(platform, trailContext string) (string, error) {
	var extra []string
	if trailContext != "" {
		extra = append(extra, "Context about the app under test:\n"+trailContext)
	}
	return r.render(IDSystem, map[string]string{"platform": platform}, extra...)
}

// Objective renders the objective of a step, or of an assertion when verify is set.
func (r *Renderer) Objective(text string, verify bool) (string, error) {
	id := IDObjective
	if verify {
		id = IDVerify
	}
	return r.render(id, map[string]string{"objective": text})
}

// Screen renders the textual part of a capture.
func (r *Renderer) Screen(width, height int, hierarchy string) (string, error) {
	return r.render(IDScreen, map[string]string{
		"width":     strconv.Itoa(width),
		"height":    strconv.Itoa(height),
		"hierarchy": hierarchy,
	})
}

func (r *Renderer) Assert(statement string) (string, error) {
	return r.render(IDAssert, map[string]string{"statement": statement})
}

func (r *Renderer) Extract(query string) (string, error) {
	return r.render(IDExtract, map[string]string{"query": query})
}
