// Package chart owns chart instances bound to fixed render slots.
package chart

import "image/color"

type Slot string

const (
	SlotQueueHistory Slot = "queueHistoryChart"
	SlotVolume       Slot = "volumeChart"
)

// Slots lists every slot a dashboard renders, in layout order.
var Slots = []Slot{SlotQueueHistory, SlotVolume}

type Kind string

const (
	KindLine  Kind = "line"
	KindBar   Kind = "bar"
	KindEmpty Kind = "empty"
)

type Series struct {
	Label  string
	Values []float64
	Color  color.NRGBA
}

// Spec describes what a chart instance draws. An empty-state spec carries a
// Message and no series.
type Spec struct {
	Kind    Kind
	Labels  []string
	Series  []Series
	Message string
}

func EmptySpec(message string) Spec {
	return Spec{Kind: KindEmpty, Message: message}
}

// Max returns the largest value across all series, or 0.
func (s Spec) Max() float64 {
	var m float64
	for _, ser := range s.Series {
		for _, v := range ser.Values {
			if v > m {
				m = v
			}
		}
	}
	return m
}

func (s Spec) clone() Spec {
	out := Spec{Kind: s.Kind, Message: s.Message}
	out.Labels = append([]string(nil), s.Labels...)
	if len(s.Series) > 0 {
		out.Series = make([]Series, len(s.Series))
		for i, ser := range s.Series {
			out.Series[i] = Series{Label: ser.Label, Color: ser.Color, Values: append([]float64(nil), ser.Values...)}
		}
	}
	return out
}

// Chart is a live chart instance. Destroy releases its canvas and is safe to
// call more than once.
type Chart interface {
	Spec() Spec
	Destroy()
	Destroyed() bool
}

// Renderer builds live chart instances on a slot's canvas.
type Renderer interface {
	Render(slot Slot, spec Spec) (Chart, error)
}

// Factory builds the replacement instance for a slot.
type Factory func(slot Slot) (Chart, error)

var (
	ColorTeal = color.NRGBA{R: 75, G: 192, B: 192, A: 255}
	ColorBlue = color.NRGBA{R: 54, G: 162, B: 235, A: 255}
	ColorRed  = color.NRGBA{R: 255, G: 99, B: 132, A: 255}
)
