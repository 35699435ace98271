package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzyreal/qwatch/internal/config"
	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/rq"
	"github.com/izzyreal/qwatch/internal/source"
	"github.com/izzyreal/qwatch/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "qwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db := openTestStore(t)
	s := New(config.Default().Server, db, db)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthzAndServerInfo(t *testing.T) {
	_, ts := newTestServer(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/healthz", "", &health))
	assert.Equal(t, "ok", health["status"])

	var info protocol.ServerInfo
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/server-info", "", &info))
	assert.Equal(t, "qwatch", info.Name)
	assert.Equal(t, 1, info.APIVersion)
	assert.Equal(t, "sqlite", info.Backend)
	assert.NotEmpty(t, info.Version)
}

func TestQueueStatsEmptyStore(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/queue-stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"hourly_volume":[]`)

	var stats protocol.QueueStats
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.Equal(t, protocol.EmptyQueueCounts(), stats.Queue)
}

func TestJobLifecycleThroughAPI(t *testing.T) {
	_, ts := newTestServer(t)

	var job protocol.Job
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, ts.URL+"/api/jobs", `{"queue":"emails"}`, &job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, protocol.QueueStateQueued, job.Status)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/jobs/"+job.ID+"/status", `{"status":"started"}`, &job))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/jobs/"+job.ID+"/status", `{"status":"finished"}`, &job))
	assert.Equal(t, protocol.QueueStateFinished, job.Status)
	assert.False(t, job.EndedUTC.IsZero())

	var apiErr map[string]string
	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, ts.URL+"/api/jobs/"+job.ID+"/status", `{"status":"failed"}`, &apiErr))
	assert.Contains(t, apiErr["error"], "invalid job state transition")

	var got protocol.Job
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/jobs/"+job.ID, "", &got))
	assert.Equal(t, job.ID, got.ID)

	var stats protocol.QueueStats
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/queue-stats", "", &stats))
	assert.Equal(t, int64(1), stats.Queue[protocol.QueueStateFinished])
	require.NotNil(t, stats.Processing)
	assert.Equal(t, int64(1), stats.Processing.TotalProcessed)
	assert.Equal(t, 100.0, stats.Processing.SuccessRate)
	require.Len(t, stats.Processing.HourlyVolume, 1)
}

func TestJobAPIValidation(t *testing.T) {
	_, ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/api/jobs", `{"queue":" "}`, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/api/jobs", `{"queue":"a","extra":1}`, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/api/jobs/x/status", `{"status":"exploded"}`, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, ts.URL+"/api/jobs/missing/status", `{"status":"started"}`, nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.URL+"/api/jobs/missing", "", nil))
}

func TestQueueStatsFilter(t *testing.T) {
	s, ts := newTestServer(t)
	ctx := context.Background()
	for _, q := range []string{"mail/in", "mail/out", "reports"} {
		_, err := s.db.EnqueueJob(ctx, q)
		require.NoError(t, err)
	}

	var stats protocol.QueueStats
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/queue-stats?queue=mail/*", "", &stats))
	assert.Equal(t, int64(2), stats.Queue[protocol.QueueStateQueued])

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, ts.URL+"/api/queue-stats?queue=%5B", "", nil))
}

func TestQueueHistoryEmptyThenSampled(t *testing.T) {
	s, ts := newTestServer(t)
	ctx := context.Background()

	resp, err := http.Get(ts.URL + "/api/queue-history")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))

	_, err = s.db.EnqueueJob(ctx, "emails")
	require.NoError(t, err)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		require.NoError(t, s.sampleHistory(ctx))
	}

	var points []protocol.HistoryPoint
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/queue-history", "", &points))
	require.Len(t, points, 3)
	assert.Equal(t, base.Unix(), points[0].Timestamp)
	assert.Equal(t, int64(1), points[2].Queued)

	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.jobs.WithLabelValues(protocol.QueueStateQueued)))
}

func TestHistoryIsPrunedToLimit(t *testing.T) {
	db := openTestStore(t)
	cfg := config.Default().Server
	cfg.HistoryLimit = 2
	s := New(cfg, db, db)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		at := time.Unix(int64(1700000000+i*60), 0)
		s.now = func() time.Time { return at }
		require.NoError(t, s.sampleHistory(ctx))
	}
	points, err := db.ListHistory(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.sampleHistory(context.Background()))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `qwatch_queue_jobs{state="queued"} 0`)
	assert.Contains(t, string(raw), "qwatch_history_samples_total 1")
}

func TestRQBackendHidesJobAPI(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	_, err := mr.SAdd("rq:queues", "rq:queue:default")
	require.NoError(t, err)
	_, err = mr.Push("rq:queue:default", "a", "b")
	require.NoError(t, err)

	db := openTestStore(t)
	s := New(config.Default().Server, db, rq.New(client))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	var stats protocol.QueueStats
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/queue-stats", "", &stats))
	assert.Equal(t, int64(2), stats.Queue[protocol.QueueStateQueued])

	var info protocol.ServerInfo
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/server-info", "", &info))
	assert.Equal(t, "rq", info.Backend)

	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", strings.NewReader(`{"queue":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) QueueStats(context.Context, source.Query) (protocol.QueueStats, error) {
	return protocol.QueueStats{}, io.ErrUnexpectedEOF
}

func TestBackendFailureMapsTo503(t *testing.T) {
	db := openTestStore(t)
	s := New(config.Default().Server, db, failingSource{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, ts.URL+"/api/queue-stats", "", nil))
	require.Error(t, s.sampleHistory(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.sampleErrors))
}
