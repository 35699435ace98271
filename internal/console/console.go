// Package console prints the dashboard board and chart slots as text tables.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/izzyreal/qwatch/internal/chart"
	"github.com/izzyreal/qwatch/internal/view"
)

const barWidth = 30

var slotTitles = map[chart.Slot]string{
	chart.SlotQueueHistory: "Queue history",
	chart.SlotVolume:       "Hourly volume",
}

type Console struct {
	mu      sync.Mutex
	w       io.Writer
	board   *view.Board
	surface *chart.Surface
	ids     []string
}

// New prints board elements in the order of ids; with no ids every board
// element is printed in sorted order.
func New(w io.Writer, board *view.Board, surface *chart.Surface, ids ...string) *Console {
	if len(ids) == 0 {
		ids = board.IDs()
	}
	return &Console{w: w, board: board, surface: surface, ids: ids}
}

// Render writes the board followed by every chart slot.
func (c *Console) Render() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.renderBoard(); err != nil {
		return err
	}
	for _, slot := range chart.Slots {
		if err := c.renderSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

func (c *Console) renderBoard() error {
	rows := make([][]string, 0, len(c.ids))
	for _, id := range c.ids {
		v, ok := c.board.Text(id)
		if !ok {
			continue
		}
		if v == "" {
			v = "-"
		}
		rows = append(rows, []string{id, v})
	}
	return renderTable(c.w, []string{"Element", "Value"}, rows)
}

func (c *Console) renderSlot(slot chart.Slot) error {
	title := slotTitles[slot]
	if title == "" {
		title = string(slot)
	}
	if _, err := fmt.Fprintf(c.w, "\n%s\n", title); err != nil {
		return err
	}
	spec, ok := c.surface.Snapshot(slot)
	if !ok {
		_, err := fmt.Fprintln(c.w, "  (no chart)")
		return err
	}
	switch spec.Kind {
	case chart.KindEmpty:
		_, err := fmt.Fprintf(c.w, "  %s\n", spec.Message)
		return err
	case chart.KindBar:
		return renderTable(c.w, barHeader(spec), barRows(spec))
	default:
		return renderTable(c.w, lineHeader(spec), lineRows(spec))
	}
}

func lineHeader(spec chart.Spec) []string {
	h := []string{"Time"}
	for _, s := range spec.Series {
		h = append(h, s.Label)
	}
	return h
}

func lineRows(spec chart.Spec) [][]string {
	rows := make([][]string, len(spec.Labels))
	for i, label := range spec.Labels {
		row := []string{label}
		for _, s := range spec.Series {
			row = append(row, formatValue(s.Values, i))
		}
		rows[i] = row
	}
	return rows
}

func barHeader(spec chart.Spec) []string {
	label := "Count"
	if len(spec.Series) > 0 {
		label = spec.Series[0].Label
	}
	return []string{"Hour", label, ""}
}

// barRows draws the first series with bars scaled to the largest value.
func barRows(spec chart.Spec) [][]string {
	maxV := spec.Max()
	rows := make([][]string, len(spec.Labels))
	for i, label := range spec.Labels {
		var v float64
		if len(spec.Series) > 0 && i < len(spec.Series[0].Values) {
			v = spec.Series[0].Values[i]
		}
		n := 0
		if maxV > 0 {
			n = int(v / maxV * barWidth)
		}
		rows[i] = []string{label, strconv.FormatFloat(v, 'f', -1, 64), strings.Repeat("#", n)}
	}
	return rows
}

func formatValue(values []float64, i int) string {
	if i >= len(values) {
		return ""
	}
	return strconv.FormatFloat(values[i], 'f', -1, 64)
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
		}),
	)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("fill table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}
