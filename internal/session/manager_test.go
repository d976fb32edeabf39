package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelWithoutSessionHasNoEffect(t *testing.T) {
	m := NewManager("emulator-5554")

	assert.False(t, m.CancelCurrentSession())
	assert.False(t, m.IsCurrentSessionCancelled())
}

func TestCancellationSurvivesEndSession(t *testing.T) {
	m := NewManager("emulator-5554")

	m.StartSession("X")
	assert.True(t, m.CancelCurrentSession())
	m.EndSession()

	_, active := m.CurrentSessionID()
	assert.False(t, active)
	assert.True(t, m.IsCurrentSessionCancelled(), "cancellation is kept until the next start")

	m.StartSession("Y")
	assert.False(t, m.IsCurrentSessionCancelled())
	id, _ := m.CurrentSessionID()
	assert.Equal(t, "Y", id)
}

func TestMaxCallsLimitIsStickyUntilStart(t *testing.T) {
	m := NewManager("d")
	m.StartSession("X")

	_, ok := m.MaxCallsLimit()
	assert.False(t, ok)

	m.MarkMaxCallsLimitReached(1, "calculate 1+2")
	m.EndSession()
	info, ok := m.MaxCallsLimit()
	assert.True(t, ok)
	assert.Equal(t, MaxCallsInfo{MaxCalls: 1, Prompt: "calculate 1+2"}, info)

	m.StartSession("Y")
	_, ok = m.MaxCallsLimit()
	assert.False(t, ok)
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager("d")
	m.StartSession("X")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.CancelCurrentSession()
		}()
		go func() {
			defer wg.Done()
			_ = m.IsCurrentSessionCancelled()
			_, _ = m.CurrentSessionID()
		}()
	}
	wg.Wait()
	assert.True(t, m.IsCurrentSessionCancelled())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.For("b-device")
	assert.Same(t, a, r.For("b-device"))
	r.For("a-device")
	assert.Equal(t, []string{"a-device", "b-device"}, r.Devices())
}

func TestEndSessionIfKeepsSuccessor(t *testing.T) {
	m := NewManager("emu")
	m.StartSession("old")
	m.StartSession("new")

	assert.False(t, m.EndSessionIf("old"))
	id, ok := m.CurrentSessionID()
	assert.True(t, ok)
	assert.Equal(t, "new", id)

	assert.True(t, m.EndSessionIf("new"))
	_, ok = m.CurrentSessionID()
	assert.False(t, ok)
}
