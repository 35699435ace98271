package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/izzyreal/qwatch/internal/chart"
	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/view"
)

const (
	PathQueueStats   = "/api/queue-stats"
	PathQueueHistory = "/api/queue-history"
	PathServerInfo   = "/api/server-info"

	MsgNoHistory          = "no history available yet"
	MsgHistoryUnavailable = "queue history temporarily unavailable"
	MsgNoVolume           = "no messages processed yet"
)

// UpdateQueueStats refreshes the counters and processing readouts. A failed
// fetch leaves every element as it was. All writes of one response, the
// volume chart included, land together.
func (d *Dashboard) UpdateQueueStats(ctx context.Context) {
	defer d.notify()

	body, err := d.fetcher.Fetch(ctx, PathQueueStats)
	if err != nil {
		slog.Warn("queue stats unavailable; keeping previous values", "error", err)
		return
	}
	var stats protocol.QueueStats
	if err := json.Unmarshal(body, &stats); err != nil {
		slog.Warn("queue stats response has unexpected shape; keeping previous values", "error", err)
		return
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	for state, count := range stats.Queue {
		d.doc.SetText(view.CounterID(state), strconv.FormatInt(count, 10))
	}

	p := stats.Processing
	if p == nil {
		return
	}
	d.doc.SetText(view.AvgProcessingTime, fmt.Sprintf("%.2fs", p.AvgProcessingTime))
	d.doc.SetText(view.TotalProcessed, strconv.FormatInt(p.TotalProcessed, 10))
	d.doc.SetText(view.SuccessRate, fmt.Sprintf("%.1f%%", p.SuccessRate))
	if p.HourlyVolume != nil {
		d.updateVolumeChart(p.HourlyVolume)
	}
}

// UpdateQueueHistory redraws the history chart. An empty or non-array
// response is the normal state of a quiet queue and is not logged.
func (d *Dashboard) UpdateQueueHistory(ctx context.Context) {
	defer d.notify()

	body, err := d.fetcher.Fetch(ctx, PathQueueHistory)
	if err != nil {
		slog.Warn("queue history unavailable", "error", err)
		d.writeMu.Lock()
		defer d.writeMu.Unlock()
		d.renderEmpty(chart.SlotQueueHistory, MsgHistoryUnavailable)
		return
	}

	var points []protocol.HistoryPoint
	if err := json.Unmarshal(body, &points); err != nil || len(points) == 0 {
		d.writeMu.Lock()
		defer d.writeMu.Unlock()
		d.renderEmpty(chart.SlotQueueHistory, MsgNoHistory)
		return
	}

	spec := d.historySpec(points)
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.replace(chart.SlotQueueHistory, spec)
}

// UpdateVolumeChart draws hourly volume oldest first. Buckets arrive newest
// first.
func (d *Dashboard) UpdateVolumeChart(buckets []protocol.VolumeBucket) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.updateVolumeChart(buckets)
}

// updateVolumeChart expects writeMu held.
func (d *Dashboard) updateVolumeChart(buckets []protocol.VolumeBucket) {
	if len(buckets) == 0 {
		d.renderEmpty(chart.SlotVolume, MsgNoVolume)
		return
	}

	n := len(buckets)
	labels := make([]string, n)
	counts := make([]float64, n)
	for i, b := range buckets {
		j := n - 1 - i
		labels[j] = hourLabel(b.Hour)
		counts[j] = float64(b.Count)
	}

	d.replace(chart.SlotVolume, chart.Spec{
		Kind:   chart.KindBar,
		Labels: labels,
		Series: []chart.Series{{Label: "Messages Processed", Values: counts, Color: chart.ColorTeal}},
	})
}

func (d *Dashboard) historySpec(points []protocol.HistoryPoint) chart.Spec {
	labels := make([]string, len(points))
	queued := make([]float64, len(points))
	started := make([]float64, len(points))
	failed := make([]float64, len(points))
	for i, p := range points {
		labels[i] = time.Unix(p.Timestamp, 0).In(d.loc).Format("15:04")
		queued[i] = float64(p.Queued)
		started[i] = float64(p.Started)
		failed[i] = float64(p.Failed)
	}
	return chart.Spec{
		Kind:   chart.KindLine,
		Labels: labels,
		Series: []chart.Series{
			{Label: "Queued", Values: queued, Color: chart.ColorTeal},
			{Label: "Processing", Values: started, Color: chart.ColorBlue},
			{Label: "Failed", Values: failed, Color: chart.ColorRed},
		},
	}
}

// hourLabel turns "2024-01-15-09" into "9:00".
func hourLabel(hour string) string {
	parts := strings.Split(strings.TrimSpace(hour), "-")
	if len(parts) < 4 {
		return hour
	}
	h := strings.TrimSpace(parts[3])
	if n, err := strconv.Atoi(h); err == nil {
		h = strconv.Itoa(n)
	}
	return h + ":00"
}

func (d *Dashboard) renderEmpty(slot chart.Slot, message string) {
	if _, err := d.charts.RenderEmptyState(slot, message); err != nil {
		d.logChartError(slot, err)
	}
}

func (d *Dashboard) replace(slot chart.Slot, spec chart.Spec) {
	if _, err := d.charts.Replace(slot, d.charts.Factory(spec)); err != nil {
		d.logChartError(slot, err)
	}
}

func (d *Dashboard) logChartError(slot chart.Slot, err error) {
	if errors.Is(err, chart.ErrManagerClosed) {
		slog.Debug("chart update after teardown dropped", "slot", slot)
		return
	}
	slog.Error("chart update failed", "slot", slot, "error", err)
}
