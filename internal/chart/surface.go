package chart

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownSlot   = errors.New("unknown chart slot")
	ErrCanvasBound   = errors.New("canvas already bound to a live chart")
	ErrManagerClosed = errors.New("chart manager closed")
)

// Surface is the concrete Renderer: one canvas per slot, each holding at most
// one bound instance. Front ends read what to draw through Snapshot.
type Surface struct {
	mu       sync.Mutex
	canvases map[Slot]*canvas
	onChange func(Slot)
}

type canvas struct {
	bound *instance
	binds int
}

type instance struct {
	surface *Surface
	slot    Slot
	spec    Spec

	once      sync.Once
	destroyed bool
}

func NewSurface(slots ...Slot) *Surface {
	if len(slots) == 0 {
		slots = Slots
	}
	s := &Surface{canvases: make(map[Slot]*canvas, len(slots))}
	for _, slot := range slots {
		s.canvases[slot] = &canvas{}
	}
	return s
}

// OnChange registers a callback fired after a canvas is bound or released.
func (s *Surface) OnChange(fn func(Slot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Surface) Render(slot Slot, spec Spec) (Chart, error) {
	s.mu.Lock()
	c, ok := s.canvases[slot]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	if c.bound != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrCanvasBound, slot)
	}
	inst := &instance{surface: s, slot: slot, spec: spec.clone()}
	c.bound = inst
	c.binds++
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(slot)
	}
	return inst, nil
}

// Snapshot returns the spec currently drawn in slot.
func (s *Surface) Snapshot(slot Slot) (Spec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.canvases[slot]
	if !ok || c.bound == nil {
		return Spec{}, false
	}
	return c.bound.spec.clone(), true
}

// Binds reports how many instances were ever bound to slot.
func (s *Surface) Binds(slot Slot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.canvases[slot]; ok {
		return c.binds
	}
	return 0
}

func (s *Surface) release(inst *instance) {
	s.mu.Lock()
	c, ok := s.canvases[inst.slot]
	if ok && c.bound == inst {
		c.bound = nil
	}
	inst.destroyed = true
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(inst.slot)
	}
}

func (i *instance) Spec() Spec {
	return i.spec.clone()
}

func (i *instance) Destroy() {
	i.once.Do(func() { i.surface.release(i) })
}

func (i *instance) Destroyed() bool {
	i.surface.mu.Lock()
	defer i.surface.mu.Unlock()
	return i.destroyed
}
