package chart

import (
	"fmt"
	"sync"
)

// Manager owns at most one live chart per slot. The previous instance is
// always destroyed before the factory for its replacement runs.
type Manager struct {
	renderer Renderer

	mu     sync.Mutex
	slots  map[Slot]Chart
	closed bool
}

func NewManager(renderer Renderer) *Manager {
	return &Manager{renderer: renderer, slots: make(map[Slot]Chart)}
}

// Factory returns a factory that renders spec through the manager's renderer.
func (m *Manager) Factory(spec Spec) Factory {
	return func(slot Slot) (Chart, error) {
		return m.renderer.Render(slot, spec)
	}
}

// Replace destroys the live instance in slot, if any, and installs the one
// built by factory. When factory fails the slot is left empty.
func (m *Manager) Replace(slot Slot, factory Factory) (Chart, error) {
	if factory == nil {
		return nil, fmt.Errorf("replace chart %q: nil factory", slot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	if prev := m.slots[slot]; prev != nil {
		prev.Destroy()
		delete(m.slots, slot)
	}

	c, err := factory(slot)
	if err != nil {
		return nil, fmt.Errorf("render chart %q: %w", slot, err)
	}
	if c == nil {
		return nil, fmt.Errorf("render chart %q: factory returned no chart", slot)
	}
	m.slots[slot] = c
	return c, nil
}

// RenderEmptyState replaces slot with a placeholder carrying message.
func (m *Manager) RenderEmptyState(slot Slot, message string) (Chart, error) {
	return m.Replace(slot, m.Factory(EmptySpec(message)))
}

func (m *Manager) Current(slot Slot) Chart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[slot]
}

// DestroyAll empties every slot.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyAllLocked()
}

// Close destroys every live instance and rejects later replacements, so a
// response landing after teardown cannot resurrect a chart.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyAllLocked()
	m.closed = true
}

func (m *Manager) destroyAllLocked() {
	for slot, c := range m.slots {
		c.Destroy()
		delete(m.slots, slot)
	}
}
