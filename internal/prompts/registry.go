package prompts

import (
	"fmt"
	"sort"
	"sync"
)

// PromptRegistry manages versioned prompts.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]map[PromptVersion]*Prompt // ID -> Version -> Prompt
}

var defaultRegistry *PromptRegistry
var defaultRegistryOnce sync.Once

// DefaultRegistry returns the process registry holding the built-in prompts.
func DefaultRegistry() *PromptRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPromptRegistry()
		defaultRegistry.Register(builtin()...)
	})
	return defaultRegistry
}

// NewPromptRegistry creates an empty prompt registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{
		prompts: make(map[string]map[PromptVersion]*Prompt),
	}
}

// Register adds prompts, replacing any with the same id and version.
func (r *PromptRegistry) Register(ps ...*Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range ps {
		if p == nil {
			continue
		}
		if r.prompts[p.ID] == nil {
			r.prompts[p.ID] = make(map[PromptVersion]*Prompt)
		}
		r.prompts[p.ID][p.Version] = p
	}
}

// Get retrieves a specific version of a prompt.
func (r *PromptRegistry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	prompt, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, version)
	}
	return prompt, nil
}

// GetLatest retrieves the highest non-deprecated version of a prompt,
// falling back to the highest deprecated one.
func (r *PromptRegistry) GetLatest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}

	var latest, latestDeprecated *Prompt
	for version, prompt := range versions {
		if prompt.Deprecated {
			if latestDeprecated == nil || version > latestDeprecated.Version {
				latestDeprecated = prompt
			}
			continue
		}
		if latest == nil || version > latest.Version {
			latest = prompt
		}
	}
	if latest == nil {
		latest = latestDeprecated
	}
	return latest, nil
}

// List returns all prompt IDs in the registry, sorted.
func (r *PromptRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Versions returns all versions for a given prompt ID, sorted.
func (r *PromptRegistry) Versions(id string) []PromptVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.prompts[id]
	result := make([]PromptVersion, 0, len(versions))
	for version := range versions {
		result = append(result, version)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
