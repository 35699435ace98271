package main

import (
	"image"
	"image/color"

	"gioui.org/f32"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"github.com/izzyreal/qwatch/internal/chart"
)

var (
	axisColor = color.NRGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	labelRows = unit.Dp(18)
)

func drawChart(gtx C, th *material.Theme, spec chart.Spec) D {
	if spec.Kind == chart.KindEmpty {
		return layout.Center.Layout(gtx, material.Body1(th, spec.Message).Layout)
	}
	gtx.Constraints.Min = image.Point{}
	size := gtx.Constraints.Max
	plotH := size.Y - gtx.Dp(labelRows)
	if plotH <= 0 || size.X <= 0 {
		return D{Size: size}
	}

	drawAxis(gtx, size.X, plotH)
	maxV := spec.Max()
	switch spec.Kind {
	case chart.KindBar:
		drawBars(gtx, spec, maxV, size.X, plotH)
	default:
		drawLines(gtx, spec, maxV, size.X, plotH)
	}
	drawLabels(gtx, th, spec.Labels, size.X, plotH)
	return D{Size: size}
}

func drawAxis(gtx C, width, height int) {
	paint.FillShape(gtx.Ops, axisColor, clip.Rect{Min: image.Pt(0, height-1), Max: image.Pt(width, height)}.Op())
}

func drawLines(gtx C, spec chart.Spec, maxV float64, width, height int) {
	for _, s := range spec.Series {
		pts := chart.LinePoints(s.Values, maxV, float32(width), float32(height))
		if len(pts) < 2 {
			continue
		}
		var p clip.Path
		p.Begin(gtx.Ops)
		p.MoveTo(f32.Pt(pts[0].X, pts[0].Y))
		for _, pt := range pts[1:] {
			p.LineTo(f32.Pt(pt.X, pt.Y))
		}
		paint.FillShape(gtx.Ops, s.Color, clip.Stroke{Path: p.End(), Width: float32(gtx.Dp(2))}.Op())
	}
}

func drawBars(gtx C, spec chart.Spec, maxV float64, width, height int) {
	if len(spec.Series) == 0 {
		return
	}
	s := spec.Series[0]
	for _, r := range chart.BarRects(s.Values, maxV, float32(width), float32(height), float32(gtx.Dp(4))) {
		rect := clip.Rect{
			Min: image.Pt(int(r.Min.X), int(r.Min.Y)),
			Max: image.Pt(int(r.Max.X), int(r.Max.Y)),
		}
		paint.FillShape(gtx.Ops, s.Color, rect.Op())
	}
}

// drawLabels prints at most eight evenly spaced x-axis labels.
func drawLabels(gtx C, th *material.Theme, labels []string, width, plotH int) {
	if len(labels) == 0 {
		return
	}
	every := (len(labels) + 7) / 8
	slot := width / len(labels)
	for i := 0; i < len(labels); i += every {
		stack := op.Offset(image.Pt(i*slot, plotH+gtx.Dp(2))).Push(gtx.Ops)
		lbl := material.Caption(th, labels[i])
		lbl.Color = axisColor
		lbl.Layout(gtx)
		stack.Pop()
	}
}
