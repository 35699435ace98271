package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskCounter struct {
	stats   atomic.Int32
	history atomic.Int32
}

func newCountingScheduler(t *testing.T, onTeardown func()) (*Scheduler, *taskCounter) {
	t.Helper()
	c := &taskCounter{}
	s := NewScheduler(SchedulerConfig{
		StatsInterval:   5 * time.Minute,
		HistoryInterval: time.Hour,
		Stats:           func(context.Context) { c.stats.Add(1) },
		History:         func(context.Context) { c.history.Add(1) },
		OnTeardown:      onTeardown,
	})
	t.Cleanup(func() { s.Handle(SignalTeardown) })
	return s, c
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	s, _ := newCountingScheduler(t, nil)
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.ActiveTimers())

	s.Start()
	s.Start()

	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 2, s.ActiveTimers())
	assert.ElementsMatch(t, []time.Duration{5 * time.Minute, time.Hour}, s.TimerCadences())
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s, _ := newCountingScheduler(t, nil)
	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	s.Start()
	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.ActiveTimers())

	s.Start()
	assert.Equal(t, 2, s.ActiveTimers())
}

func TestSchedulerHiddenThenVisibleRefreshesOnceAndResumes(t *testing.T) {
	s, c := newCountingScheduler(t, nil)
	s.Start()

	s.Handle(SignalHidden)
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.ActiveTimers())

	s.Handle(SignalVisible)
	s.Wait()

	assert.Equal(t, int32(1), c.stats.Load())
	assert.Equal(t, int32(1), c.history.Load())
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 2, s.ActiveTimers())
}

func TestSchedulerIgnoresRepeatedVisibleSignal(t *testing.T) {
	s, c := newCountingScheduler(t, nil)
	s.Start()

	s.Handle(SignalVisible)
	s.Handle(SignalHidden)
	s.Handle(SignalHidden)
	s.Handle(SignalVisible)
	s.Handle(SignalVisible)
	s.Wait()

	assert.Equal(t, int32(1), c.stats.Load())
	assert.Equal(t, int32(1), c.history.Load())
	assert.Equal(t, 2, s.ActiveTimers())
}

func TestSchedulerVisibleStartsEvenIfNeverStarted(t *testing.T) {
	s, _ := newCountingScheduler(t, nil)

	s.Handle(SignalHidden)
	s.Handle(SignalVisible)
	s.Wait()

	assert.Equal(t, StateRunning, s.State())
}

func TestSchedulerTeardownStopsAndRefusesRestart(t *testing.T) {
	var teardowns atomic.Int32
	s, c := newCountingScheduler(t, func() { teardowns.Add(1) })
	s.Start()

	s.Handle(SignalTeardown)
	s.Handle(SignalTeardown)

	assert.Equal(t, int32(1), teardowns.Load())
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.ActiveTimers())

	s.Start()
	s.Refresh()
	s.Handle(SignalVisible)
	s.Wait()
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, c.stats.Load())
}

func TestSchedulerTicksFireTasks(t *testing.T) {
	var stats atomic.Int32
	s := NewScheduler(SchedulerConfig{
		StatsInterval:   time.Second,
		HistoryInterval: time.Hour,
		Stats:           func(context.Context) { stats.Add(1) },
	})
	t.Cleanup(func() { s.Handle(SignalTeardown) })

	s.Start()
	require.Eventually(t, func() bool { return stats.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestSchedulerTeardownCancelsTaskContext(t *testing.T) {
	started := make(chan struct{})
	done := make(chan error, 1)
	s := NewScheduler(SchedulerConfig{
		StatsInterval:   time.Hour,
		HistoryInterval: time.Hour,
		Stats: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			done <- ctx.Err()
		},
	})

	s.Refresh()
	<-started
	s.Handle(SignalTeardown)
	s.Wait()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSchedulerKeepsMillisecondCadences(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		StatsInterval:   1500 * time.Millisecond,
		HistoryInterval: 250 * time.Millisecond,
	})
	t.Cleanup(func() { s.Handle(SignalTeardown) })

	s.Start()

	assert.ElementsMatch(t, []time.Duration{1500 * time.Millisecond, 250 * time.Millisecond}, s.TimerCadences())
}

func TestSchedulerSubSecondCadenceFiresRepeatedly(t *testing.T) {
	var stats atomic.Int32
	s := NewScheduler(SchedulerConfig{
		StatsInterval:   100 * time.Millisecond,
		HistoryInterval: time.Hour,
		Stats:           func(context.Context) { stats.Add(1) },
	})
	t.Cleanup(func() { s.Handle(SignalTeardown) })

	s.Start()
	require.Eventually(t, func() bool { return stats.Load() >= 3 }, 5*time.Second, 20*time.Millisecond)
}

func TestSchedulerVisibleArmsTimersBeforeReturning(t *testing.T) {
	s, _ := newCountingScheduler(t, nil)
	s.Handle(SignalHidden)

	s.Handle(SignalVisible)
	assert.Equal(t, StateRunning, s.State())

	s.Handle(SignalHidden)
	s.Wait()
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.ActiveTimers())
}

func TestSchedulerOpenStartsAndRefreshes(t *testing.T) {
	s, c := newCountingScheduler(t, nil)

	s.Open()
	s.Wait()

	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, int32(1), c.stats.Load())
	assert.Equal(t, int32(1), c.history.Load())
}

func TestSchedulerOpenWhileHiddenDoesNothing(t *testing.T) {
	s, c := newCountingScheduler(t, nil)
	s.Handle(SignalHidden)

	s.Open()
	s.Wait()

	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, c.stats.Load())
}
