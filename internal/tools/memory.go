package tools

import (
	"regexp"
	"sort"
	"sync"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Memory holds values remembered during a session, referenced from tool
// parameters and prompts as {{name}}.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty memory.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Remember stores value under name.
func (m *Memory) Remember(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Get returns the value stored under name.
func (m *Memory) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// Snapshot returns a copy of all values.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Clear forgets everything.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}

// Interpolate replaces {{name}} placeholders with remembered values. Unknown
// placeholders are left verbatim and returned sorted in missing.
func (m *Memory) Interpolate(s string) (out string, missing []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	out = placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if v, ok := m.values[name]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})
	sort.Strings(missing)
	return out, missing
}
