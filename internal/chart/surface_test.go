package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceRefusesDoubleBinding(t *testing.T) {
	s := NewSurface()

	first, err := s.Render(SlotVolume, Spec{Kind: KindBar})
	require.NoError(t, err)

	_, err = s.Render(SlotVolume, Spec{Kind: KindBar})
	assert.ErrorIs(t, err, ErrCanvasBound)

	first.Destroy()
	first.Destroy()
	assert.True(t, first.Destroyed())

	_, err = s.Render(SlotVolume, Spec{Kind: KindBar})
	assert.NoError(t, err)
}

func TestSurfaceUnknownSlot(t *testing.T) {
	s := NewSurface(SlotVolume)
	_, err := s.Render(SlotQueueHistory, Spec{Kind: KindLine})
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestSurfaceSnapshotIsACopy(t *testing.T) {
	s := NewSurface()
	spec := Spec{Kind: KindLine, Labels: []string{"a"}, Series: []Series{{Label: "Queued", Values: []float64{1}}}}
	_, err := s.Render(SlotQueueHistory, spec)
	require.NoError(t, err)

	spec.Series[0].Values[0] = 99
	got, ok := s.Snapshot(SlotQueueHistory)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Series[0].Values[0])
	assert.Equal(t, 1.0, got.Max())
}

func TestSurfaceOnChangeFiresOnBindAndRelease(t *testing.T) {
	s := NewSurface()
	var seen []Slot
	s.OnChange(func(slot Slot) { seen = append(seen, slot) })

	c, err := s.Render(SlotQueueHistory, EmptySpec("x"))
	require.NoError(t, err)
	c.Destroy()

	assert.Equal(t, []Slot{SlotQueueHistory, SlotQueueHistory}, seen)
}
