package chart

// Point is a position in chart-local pixels, origin at the top left.
type Point struct {
	X, Y float32
}

// Rect is an axis-aligned bar in chart-local pixels.
type Rect struct {
	Min, Max Point
}

// LinePoints spreads values evenly across width and scales them so that max
// touches the top edge. A single value is centred.
func LinePoints(values []float64, max float64, width, height float32) []Point {
	if len(values) == 0 {
		return nil
	}
	out := make([]Point, len(values))
	step := float32(0)
	if len(values) > 1 {
		step = width / float32(len(values)-1)
	}
	for i, v := range values {
		x := float32(i) * step
		if len(values) == 1 {
			x = width / 2
		}
		out[i] = Point{X: x, Y: height - scale(v, max, height)}
	}
	return out
}

// BarRects lays out one bar per value with gap pixels between bars.
func BarRects(values []float64, max float64, width, height, gap float32) []Rect {
	if len(values) == 0 {
		return nil
	}
	n := float32(len(values))
	barW := (width - gap*(n-1)) / n
	if barW < 1 {
		barW = 1
	}
	out := make([]Rect, len(values))
	for i, v := range values {
		x := float32(i) * (barW + gap)
		out[i] = Rect{
			Min: Point{X: x, Y: height - scale(v, max, height)},
			Max: Point{X: x + barW, Y: height},
		}
	}
	return out
}

func scale(v, max float64, height float32) float32 {
	if max <= 0 || v <= 0 {
		return 0
	}
	if v > max {
		v = max
	}
	return float32(v/max) * height
}
