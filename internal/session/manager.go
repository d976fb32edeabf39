package session

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Manager holds the session state of one device. Every field is
// independently atomic: the agent loop reads the flags at its checkpoints
// while cancel requests write them from other goroutines. Compound
// invariants rely on the Start/End lifecycle, not on cross-field atomicity.
type Manager struct {
	deviceID  string
	sessionID atomic.Pointer[string]
	cancelled atomic.Bool
	maxCalls  atomic.Pointer[MaxCallsInfo]
}

// NewManager creates a manager for deviceID with no active session.
func NewManager(deviceID string) *Manager {
	return &Manager{deviceID: deviceID}
}

func (m *Manager) DeviceID() string { return m.deviceID }

// StartSession makes id current and resets the cancellation and
// max-calls state.
func (m *Manager) StartSession(id string) {
	m.cancelled.Store(false)
	m.maxCalls.Store(nil)
	m.sessionID.Store(&id)
}

// CancelCurrentSession flags the active session as cancelled. It has no
// effect when no session is active.
func (m *Manager) CancelCurrentSession() bool {
	if m.sessionID.Load() == nil {
		return false
	}
	m.cancelled.Store(true)
	return true
}

// MarkMaxCallsLimitReached records the exhausted budget. It is sticky until
// the next StartSession.
func (m *Manager) MarkMaxCallsLimitReached(maxCalls int, prompt string) {
	m.maxCalls.Store(&MaxCallsInfo{MaxCalls: maxCalls, Prompt: prompt})
}

// EndSession clears the current id. The cancellation flag is preserved so
// callers can tell a completed run from one that completed because it was
// cancelled.
func (m *Manager) EndSession() {
	m.sessionID.Store(nil)
}

// EndSessionIf ends the session only while id is still current. A run that
// was superseded uses it so it cannot clear its successor.
func (m *Manager) EndSessionIf(id string) bool {
	p := m.sessionID.Load()
	if p == nil || *p != id {
		return false
	}
	return m.sessionID.CompareAndSwap(p, nil)
}

// CurrentSessionID returns the active id, or "" and false.
func (m *Manager) CurrentSessionID() (string, bool) {
	p := m.sessionID.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

func (m *Manager) IsCurrentSessionCancelled() bool {
	return m.cancelled.Load()
}

// MaxCallsLimit returns the recorded limit info, if any.
func (m *Manager) MaxCallsLimit() (MaxCallsInfo, bool) {
	p := m.maxCalls.Load()
	if p == nil {
		return MaxCallsInfo{}, false
	}
	return *p, true
}

// Registry maps device ids to their managers.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// For returns the manager for deviceID, creating it on first use.
func (r *Registry) For(deviceID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[deviceID]
	if !ok {
		m = NewManager(deviceID)
		r.managers[deviceID] = m
	}
	return m
}

// Devices returns the known device ids, sorted.
func (r *Registry) Devices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.managers))
	for id := range r.managers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
