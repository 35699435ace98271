// Package source defines where the server reads queue statistics from and
// the aggregation shared by every backend.
package source

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/izzyreal/qwatch/internal/protocol"
)

const DefaultWindow = 24 * time.Hour

type Query struct {
	// Filter is a doublestar glob matched against queue names; empty matches all.
	Filter string
	// Window bounds the completions considered for averages and hourly volume.
	Window time.Duration
	Now    time.Time
}

func (q Query) normalized() Query {
	if q.Window <= 0 {
		q.Window = DefaultWindow
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}
	q.Filter = strings.TrimSpace(q.Filter)
	return q
}

// Since returns the start of the query window.
func (q Query) Since() time.Time {
	q = q.normalized()
	return q.Now.Add(-q.Window)
}

type Source interface {
	Name() string
	QueueStats(ctx context.Context, q Query) (protocol.QueueStats, error)
}

// Completion is one job that reached a terminal state.
type Completion struct {
	Queue   string
	Status  string
	Started time.Time
	Ended   time.Time
}

// MatchQueue reports whether queue passes filter. An invalid pattern matches
// nothing.
func MatchQueue(filter, queue string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	ok, err := doublestar.Match(filter, queue)
	return err == nil && ok
}

// BuildProcessing derives processing statistics from terminal state counts
// and the completions inside the query window. HourlyVolume is never nil and
// is ordered newest first.
func BuildProcessing(counts map[string]int64, completions []Completion, q Query) *protocol.ProcessingStats {
	q = q.normalized()
	since := q.Now.Add(-q.Window)

	finished := counts[protocol.QueueStateFinished]
	failed := counts[protocol.QueueStateFailed]
	out := &protocol.ProcessingStats{
		TotalProcessed: finished + failed,
		HourlyVolume:   []protocol.VolumeBucket{},
	}
	if out.TotalProcessed > 0 {
		out.SuccessRate = float64(finished) / float64(out.TotalProcessed) * 100
	}

	var (
		durSum   float64
		durCount int
		perHour  = map[string]int64{}
	)
	for _, c := range completions {
		if c.Ended.IsZero() || c.Ended.Before(since) || c.Ended.After(q.Now) {
			continue
		}
		if !protocol.IsTerminalQueueState(c.Status) {
			continue
		}
		perHour[c.Ended.UTC().Format(protocol.HourLayout)]++
		if protocol.NormalizeQueueState(c.Status) == protocol.QueueStateFinished && !c.Started.IsZero() && !c.Ended.Before(c.Started) {
			durSum += c.Ended.Sub(c.Started).Seconds()
			durCount++
		}
	}
	if durCount > 0 {
		out.AvgProcessingTime = durSum / float64(durCount)
	}

	hours := make([]string, 0, len(perHour))
	for h := range perHour {
		hours = append(hours, h)
	}
	// HourLayout sorts lexically in time order.
	sort.Sort(sort.Reverse(sort.StringSlice(hours)))
	for _, h := range hours {
		out.HourlyVolume = append(out.HourlyVolume, protocol.VolumeBucket{Hour: h, Count: perHour[h]})
	}
	return out
}
