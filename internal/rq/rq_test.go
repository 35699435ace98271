package rq

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/source"
)

func newTestSource(t *testing.T) (*Source, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func seedJob(t *testing.T, mr *miniredis.Miniredis, registry, queue, id string, started, ended time.Time) {
	t.Helper()
	_, err := mr.ZAdd(registry+queue, float64(ended.Add(time.Hour).Unix()), id)
	require.NoError(t, err)
	mr.HSet(jobKeyPrefix+id,
		"started_at", started.Format("2006-01-02T15:04:05.000000Z"),
		"ended_at", ended.Format("2006-01-02T15:04:05.000000Z"),
	)
}

func TestQueueStatsReadsRegistries(t *testing.T) {
	src, mr := newTestSource(t)
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	_, err := mr.SAdd(keyQueues, "rq:queue:default", "rq:queue:low")
	require.NoError(t, err)
	_, err = mr.Push("rq:queue:default", "a", "b", "c")
	require.NoError(t, err)
	_, err = mr.Push("rq:queue:low", "d")
	require.NoError(t, err)
	_, err = mr.ZAdd("rq:wip:default", 1, "e")
	require.NoError(t, err)
	_, err = mr.ZAdd("rq:scheduled:low", 1, "f")
	require.NoError(t, err)

	seedJob(t, mr, "rq:finished:", "default", "j1", now.Add(-20*time.Minute), now.Add(-20*time.Minute+2*time.Second))
	seedJob(t, mr, "rq:finished:", "low", "j2", now.Add(-80*time.Minute), now.Add(-80*time.Minute+4*time.Second))
	seedJob(t, mr, "rq:failed:", "default", "j3", now.Add(-5*time.Minute), now.Add(-4*time.Minute))

	stats, err := src.QueueStats(context.Background(), source.Query{Now: now})
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Queue[protocol.QueueStateQueued])
	assert.Equal(t, int64(1), stats.Queue[protocol.QueueStateStarted])
	assert.Equal(t, int64(2), stats.Queue[protocol.QueueStateFinished])
	assert.Equal(t, int64(1), stats.Queue[protocol.QueueStateFailed])
	assert.Equal(t, int64(0), stats.Queue[protocol.QueueStateDeferred])
	assert.Equal(t, int64(1), stats.Queue[protocol.QueueStateScheduled])

	require.NotNil(t, stats.Processing)
	assert.Equal(t, int64(3), stats.Processing.TotalProcessed)
	assert.InDelta(t, 66.67, stats.Processing.SuccessRate, 0.01)
	assert.InDelta(t, 3.0, stats.Processing.AvgProcessingTime, 1e-9)
	assert.Equal(t, []protocol.VolumeBucket{
		{Hour: "2024-01-15-10", Count: 2},
		{Hour: "2024-01-15-09", Count: 1},
	}, stats.Processing.HourlyVolume)
}

func TestQueueStatsFilterAndEmpty(t *testing.T) {
	src, mr := newTestSource(t)

	stats, err := src.QueueStats(context.Background(), source.Query{})
	require.NoError(t, err)
	assert.Equal(t, protocol.EmptyQueueCounts(), stats.Queue)
	require.NotNil(t, stats.Processing)
	assert.NotNil(t, stats.Processing.HourlyVolume)
	assert.Empty(t, stats.Processing.HourlyVolume)

	_, err = mr.SAdd(keyQueues, "rq:queue:mail-high", "rq:queue:mail-low", "rq:queue:reports")
	require.NoError(t, err)
	_, err = mr.Push("rq:queue:mail-high", "a")
	require.NoError(t, err)
	_, err = mr.Push("rq:queue:reports", "b", "c")
	require.NoError(t, err)

	names, err := src.Queues(context.Background(), "mail-*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mail-high", "mail-low"}, names)

	stats, err = src.QueueStats(context.Background(), source.Query{Filter: "mail-*"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Queue[protocol.QueueStateQueued])
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	src, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0", 1, time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	assert.Equal(t, "rq", src.Name())

	_, err = Connect(context.Background(), "not a url", 1, time.Millisecond)
	require.Error(t, err)
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), "redis://"+addr, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestParseRQTime(t *testing.T) {
	got := parseRQTime("2024-01-15T09:00:01.250000Z")
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 1, 250000000, time.UTC), got)
	assert.True(t, parseRQTime("").IsZero())
	assert.True(t, parseRQTime(nil).IsZero())
	assert.True(t, parseRQTime("yesterday").IsZero())
}
