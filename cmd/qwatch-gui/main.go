package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gioui.org/app"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"github.com/izzyreal/qwatch/internal/chart"
	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/dashboard"
	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/view"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

type ready struct {
	setup *dashboard.Setup
	err   error
}

type guiApp struct {
	theme  *material.Theme
	ops    op.Ops
	window *app.Window

	ctx    context.Context
	cancel context.CancelFunc
	readyc chan ready
	setup  *dashboard.Setup
	opened bool

	hidden     bool
	statusText string
	lastError  string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	go func() {
		w := new(app.Window)
		w.Option(
			app.Title("qwatch"),
			app.Size(unit.Dp(980), unit.Dp(760)),
		)
		if err := run(w); err != nil {
			slog.Error("qwatch-gui exited", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
}

func run(w *app.Window) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(os.Getenv("QWATCH_CONFIG"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	model := &guiApp{
		theme:      material.NewTheme(),
		window:     w,
		ctx:        ctx,
		cancel:     cancel,
		readyc:     make(chan ready, 1),
		statusText: "Connecting",
	}
	go model.connect(ctx, cfg.Dashboard)

	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			model.teardown()
			return e.Err
		case app.ConfigEvent:
			model.setHidden(e.Config.Mode == app.Minimized)
		case app.FrameEvent:
			gtx := app.NewContext(&model.ops, e)
			model.processReady()
			model.layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

// connect builds the dashboard off the event loop; discovery may block for
// seconds. Polling starts in openIfVisible.
func (m *guiApp) connect(ctx context.Context, cfg config.Dashboard) {
	setup, err := dashboard.Build(ctx, cfg, nil, m.window.Invalidate)
	m.readyc <- ready{setup: setup, err: err}
	m.window.Invalidate()
}

func (m *guiApp) processReady() {
	select {
	case r := <-m.readyc:
		if r.err != nil {
			m.statusText = "Not connected"
			m.lastError = r.err.Error()
			return
		}
		m.setup = r.setup
		m.statusText = "Polling " + r.setup.BaseURL
		m.openIfVisible()
	default:
	}
}

func (m *guiApp) openIfVisible() {
	if m.hidden || m.opened {
		return
	}
	m.opened = true
	setup := m.setup
	go setup.Open(m.ctx)
}

func (m *guiApp) setHidden(hidden bool) {
	if hidden == m.hidden {
		return
	}
	m.hidden = hidden
	if m.setup == nil {
		return
	}
	if !m.opened {
		m.openIfVisible()
		return
	}
	if hidden {
		m.setup.Handle(dashboard.SignalHidden)
	} else {
		m.setup.Handle(dashboard.SignalVisible)
	}
}

func (m *guiApp) teardown() {
	m.cancel()
	if m.setup == nil {
		select {
		case r := <-m.readyc:
			m.setup = r.setup
		default:
		}
	}
	if m.setup != nil {
		m.setup.Close()
	}
}

func (m *guiApp) text(id string) string {
	if m.setup == nil {
		return "-"
	}
	v, _ := m.setup.Board.Text(id)
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func (m *guiApp) layout(gtx C) D {
	in := layout.UniformInset(unit.Dp(16))
	return in.Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				return material.H5(m.theme, "qwatch").Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(6)}.Layout),
			layout.Rigid(m.layoutStatus),
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Rigid(m.layoutCounters),
			layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
			layout.Rigid(m.layoutProcessing),
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Flexed(1, m.layoutChart(chart.SlotQueueHistory, "Queue history")),
			layout.Rigid(layout.Spacer{Height: unit.Dp(12)}.Layout),
			layout.Flexed(1, m.layoutChart(chart.SlotVolume, "Hourly volume")),
		)
	})
}

func (m *guiApp) layoutStatus(gtx C) D {
	status := m.statusText
	if m.hidden {
		status += " (paused while minimised)"
	}
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx C) D {
			return material.Body1(m.theme, fmt.Sprintf("Status: %s   Server: %s", status, m.text(view.ServerVersion))).Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			if m.lastError == "" {
				return D{}
			}
			return material.Body2(m.theme, "Last error: "+m.lastError).Layout(gtx)
		}),
	)
}

func (m *guiApp) layoutCounters(gtx C) D {
	children := make([]layout.FlexChild, 0, len(protocol.QueueStates))
	for _, state := range protocol.QueueStates {
		children = append(children, layout.Flexed(1, func(gtx C) D {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx C) D {
					return material.Caption(m.theme, state).Layout(gtx)
				}),
				layout.Rigid(func(gtx C) D {
					return material.H6(m.theme, m.text(view.CounterID(state))).Layout(gtx)
				}),
			)
		}))
	}
	return layout.Flex{}.Layout(gtx, children...)
}

func (m *guiApp) layoutProcessing(gtx C) D {
	line := fmt.Sprintf("Avg processing: %s   Processed: %s   Success rate: %s",
		m.text(view.AvgProcessingTime), m.text(view.TotalProcessed), m.text(view.SuccessRate))
	return material.Body1(m.theme, line).Layout(gtx)
}

func (m *guiApp) layoutChart(slot chart.Slot, title string) layout.Widget {
	return func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				return material.H6(m.theme, title).Layout(gtx)
			}),
			layout.Flexed(1, func(gtx C) D {
				if m.setup == nil {
					return material.Body2(m.theme, "waiting for server").Layout(gtx)
				}
				spec, ok := m.setup.Surface.Snapshot(slot)
				if !ok {
					return D{Size: gtx.Constraints.Max}
				}
				return drawChart(gtx, m.theme, spec)
			}),
		)
	}
}
