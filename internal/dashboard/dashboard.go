// Package dashboard turns queue API responses into board readouts and charts
// and keeps them fresh on two polling cadences.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/izzyreal/qwatch/internal/chart"
	"github.com/izzyreal/qwatch/internal/fetch"
	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/view"
)

type Options struct {
	StatsInterval    time.Duration
	HistoryInterval  time.Duration
	Location         *time.Location
	MinServerVersion string
	// OnUpdate runs after every updater invocation, successful or not.
	OnUpdate func()
}

type Dashboard struct {
	fetcher          *fetch.Fetcher
	doc              view.Document
	charts           *chart.Manager
	loc              *time.Location
	minServerVersion string
	onUpdate         func()

	// writeMu spans the whole write phase of one updater run so overlapping
	// runs never interleave their readouts.
	writeMu sync.Mutex

	scheduler *Scheduler
}

func New(fetcher *fetch.Fetcher, doc view.Document, charts *chart.Manager, opts Options) *Dashboard {
	d := &Dashboard{
		fetcher:          fetcher,
		doc:              doc,
		charts:           charts,
		loc:              opts.Location,
		minServerVersion: strings.TrimSpace(opts.MinServerVersion),
		onUpdate:         opts.OnUpdate,
	}
	if d.loc == nil {
		d.loc = time.Local
	}
	d.scheduler = NewScheduler(SchedulerConfig{
		StatsInterval:   opts.StatsInterval,
		HistoryInterval: opts.HistoryInterval,
		Stats:           d.UpdateQueueStats,
		History:         d.UpdateQueueHistory,
		OnTeardown:      d.charts.Close,
	})
	return d
}

func (d *Dashboard) Scheduler() *Scheduler { return d.scheduler }

// Open probes the server, refreshes every readout once and starts polling.
// A dashboard hidden in the meantime stays idle until it is shown.
func (d *Dashboard) Open(ctx context.Context) {
	d.ProbeServer(ctx)
	d.scheduler.Open()
}

// Handle forwards a visibility or teardown signal to the scheduler.
func (d *Dashboard) Handle(sig Signal) {
	slog.Debug("dashboard signal", "signal", sig.String())
	d.scheduler.Handle(sig)
}

// Close stops polling and destroys both charts.
func (d *Dashboard) Close() {
	d.Handle(SignalTeardown)
	d.scheduler.Wait()
}

// ProbeServer reads server info with the degrading policy; an unreachable
// server yields a zero ServerInfo and polling proceeds anyway.
func (d *Dashboard) ProbeServer(ctx context.Context) protocol.ServerInfo {
	var info protocol.ServerInfo
	body := d.fetcher.FetchOrEmpty(ctx, PathServerInfo, fetch.EmptyObject)
	if err := json.Unmarshal(body, &info); err != nil {
		slog.Warn("server info has unexpected shape", "error", err)
		return protocol.ServerInfo{}
	}
	if strings.TrimSpace(info.Version) == "" {
		return info
	}
	d.writeMu.Lock()
	d.doc.SetText(view.ServerVersion, info.Version)
	d.writeMu.Unlock()
	if !serverVersionSupported(info.Version, d.minServerVersion) {
		slog.Warn("server is older than the minimum supported version", "server_version", info.Version, "min_server_version", d.minServerVersion)
	}
	return info
}

func (d *Dashboard) notify() {
	if d.onUpdate != nil {
		d.onUpdate()
	}
}

// serverVersionSupported treats non-semver versions such as "dev" as
// supported.
func serverVersionSupported(version, minVersion string) bool {
	v, ok := normalizeSemver(version)
	if !ok {
		return true
	}
	m, ok := normalizeSemver(minVersion)
	if !ok {
		return true
	}
	return semver.Compare(v, m) >= 0
}

func normalizeSemver(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}
