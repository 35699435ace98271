// Package simulator drives a job store with synthetic traffic so a fresh
// server has something to show.
package simulator

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/izzyreal/qwatch/internal/protocol"
)

// JobStore is the subset of the sqlite store the simulator drives.
type JobStore interface {
	EnqueueJob(ctx context.Context, queue string) (protocol.Job, error)
	UpdateJobStatus(ctx context.Context, id, status string) (protocol.Job, error)
	ListJobsByStatus(ctx context.Context, status string, limit int) ([]protocol.Job, error)
}

// LoadPattern shapes how many jobs arrive per tick.
type LoadPattern int

const (
	PatternConstant LoadPattern = iota
	PatternSineWave
	PatternSpikes
)

func (p LoadPattern) String() string {
	switch p {
	case PatternConstant:
		return "constant"
	case PatternSineWave:
		return "sinewave"
	case PatternSpikes:
		return "spikes"
	default:
		return "unknown"
	}
}

type Config struct {
	Queues       []string
	Pattern      LoadPattern
	Tick         time.Duration
	Workers      int
	BaseArrivals int
	MinWork      time.Duration
	MaxWork      time.Duration
	ErrorRate    float64
	Seed         uint64
}

func DefaultConfig() Config {
	return Config{
		Queues:       []string{"default", "emails", "reports"},
		Pattern:      PatternSineWave,
		Tick:         time.Second,
		Workers:      4,
		BaseArrivals: 3,
		MinWork:      500 * time.Millisecond,
		MaxWork:      4 * time.Second,
		ErrorRate:    0.05,
		Seed:         uint64(time.Now().UnixNano()),
	}
}

type Simulator struct {
	store JobStore
	cfg   Config
	rng   *rand.Rand

	mu       sync.Mutex
	ticks    int
	deadline map[string]time.Time
}

func New(store JobStore, cfg Config) *Simulator {
	def := DefaultConfig()
	if len(cfg.Queues) == 0 {
		cfg.Queues = def.Queues
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxWork < cfg.MinWork {
		cfg.MaxWork = cfg.MinWork
	}
	return &Simulator{
		store:    store,
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		deadline: map[string]time.Time{},
	}
}

// Run steps the simulation every tick until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	slog.Info("load simulator started", "pattern", s.cfg.Pattern.String(), "queues", s.cfg.Queues, "workers", s.cfg.Workers)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("load simulator stopped")
			return
		case now := <-ticker.C:
			if err := s.Step(ctx, now.UTC()); err != nil && ctx.Err() == nil {
				slog.Warn("load simulator step failed", "error", err)
			}
		}
	}
}

// Step completes due jobs, fills free workers from the queued backlog and
// enqueues the arrivals for this tick.
func (s *Simulator) Step(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++

	if err := s.completeDue(ctx, now); err != nil {
		return err
	}
	if err := s.startWork(ctx, now); err != nil {
		return err
	}
	for i := 0; i < s.arrivals(); i++ {
		queue := s.cfg.Queues[s.rng.IntN(len(s.cfg.Queues))]
		if _, err := s.store.EnqueueJob(ctx, queue); err != nil {
			return err
		}
	}
	return nil
}

// InFlight reports how many jobs the simulated workers hold.
func (s *Simulator) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadline)
}

func (s *Simulator) completeDue(ctx context.Context, now time.Time) error {
	for id, due := range s.deadline {
		if now.Before(due) {
			continue
		}
		status := protocol.QueueStateFinished
		if s.rng.Float64() < s.cfg.ErrorRate {
			status = protocol.QueueStateFailed
		}
		if _, err := s.store.UpdateJobStatus(ctx, id, status); err != nil {
			return err
		}
		delete(s.deadline, id)
	}
	return nil
}

func (s *Simulator) startWork(ctx context.Context, now time.Time) error {
	free := s.cfg.Workers - len(s.deadline)
	if free <= 0 {
		return nil
	}
	queued, err := s.store.ListJobsByStatus(ctx, protocol.QueueStateQueued, free)
	if err != nil {
		return err
	}
	for _, job := range queued {
		if _, err := s.store.UpdateJobStatus(ctx, job.ID, protocol.QueueStateStarted); err != nil {
			return err
		}
		s.deadline[job.ID] = now.Add(s.workDuration())
	}
	return nil
}

func (s *Simulator) workDuration() time.Duration {
	span := s.cfg.MaxWork - s.cfg.MinWork
	if span <= 0 {
		return s.cfg.MinWork
	}
	return s.cfg.MinWork + time.Duration(s.rng.Int64N(int64(span)))
}

func (s *Simulator) arrivals() int {
	base := float64(s.cfg.BaseArrivals)
	switch s.cfg.Pattern {
	case PatternSineWave:
		// One full period every 60 ticks.
		return int(math.Round(base * (1 + math.Sin(float64(s.ticks)*2*math.Pi/60))))
	case PatternSpikes:
		if s.rng.Float64() < 0.1 {
			return int(base * 5)
		}
		return int(base)
	default:
		return int(base)
	}
}
