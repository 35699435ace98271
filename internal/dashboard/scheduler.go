package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultStatsInterval   = 5 * time.Second
	DefaultHistoryInterval = 60 * time.Second
)

type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Signal is an external event fed into the scheduler.
type Signal int

const (
	SignalHidden Signal = iota
	SignalVisible
	SignalTeardown
)

func (s Signal) String() string {
	switch s {
	case SignalHidden:
		return "hidden"
	case SignalVisible:
		return "visible"
	case SignalTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

type Task func(ctx context.Context)

type SchedulerConfig struct {
	StatsInterval   time.Duration
	HistoryInterval time.Duration
	Stats           Task
	History         Task
	// OnTeardown runs once, after both timers are cancelled.
	OnTeardown func()
}

// Scheduler owns the two polling timers. Ticks are not deduplicated: a slow
// updater run may overlap the next tick.
type Scheduler struct {
	statsEvery   time.Duration
	historyEvery time.Duration
	stats        Task
	history      Task
	onTeardown   func()

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	visible  bool
	tornDown bool
	cron     *cron.Cron

	refreshes sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.HistoryInterval <= 0 {
		cfg.HistoryInterval = DefaultHistoryInterval
	}
	noop := func(context.Context) {}
	if cfg.Stats == nil {
		cfg.Stats = noop
	}
	if cfg.History == nil {
		cfg.History = noop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		statsEvery:   cfg.StatsInterval,
		historyEvery: cfg.HistoryInterval,
		stats:        cfg.Stats,
		history:      cfg.History,
		onTeardown:   cfg.OnTeardown,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateStopped,
		visible:      true,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start arms both timers. It does nothing when already running or after
// teardown.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

// Stop cancels both timers. Runs already in flight are left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Refresh runs both updaters once, outside the timers.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.refreshes.Add(2)
	s.mu.Unlock()

	go s.runRefresh(s.stats)
	go s.runRefresh(s.history)
}

// Open arms the timers and refreshes once, unless the scheduler is hidden or
// torn down. A later SignalVisible does both.
func (s *Scheduler) Open() {
	s.mu.Lock()
	if !s.visible || s.tornDown {
		s.mu.Unlock()
		return
	}
	s.startLocked()
	s.mu.Unlock()
	s.Refresh()
}

// Wait blocks until every Refresh started so far has returned.
func (s *Scheduler) Wait() {
	s.refreshes.Wait()
}

func (s *Scheduler) Handle(sig Signal) {
	switch sig {
	case SignalHidden:
		s.mu.Lock()
		s.visible = false
		s.stopLocked()
		s.mu.Unlock()
	case SignalVisible:
		s.mu.Lock()
		if s.visible || s.tornDown {
			s.mu.Unlock()
			return
		}
		s.visible = true
		s.startLocked()
		s.mu.Unlock()
		s.Refresh()
	case SignalTeardown:
		s.mu.Lock()
		if s.tornDown {
			s.mu.Unlock()
			return
		}
		s.stopLocked()
		s.tornDown = true
		s.mu.Unlock()
		s.cancel()
		if s.onTeardown != nil {
			s.onTeardown()
		}
	default:
		slog.Warn("scheduler ignored unknown signal", "signal", int(sig))
	}
}

// ActiveTimers reports how many recurring timers are armed.
func (s *Scheduler) ActiveTimers() int {
	return len(s.TimerCadences())
}

// TimerCadences returns the interval of every armed timer.
func (s *Scheduler) TimerCadences() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	var out []time.Duration
	for _, e := range s.cron.Entries() {
		if every, ok := e.Schedule.(constantDelay); ok {
			out = append(out, time.Duration(every))
		}
	}
	return out
}

func (s *Scheduler) startLocked() {
	if s.tornDown || s.state == StateRunning {
		return
	}
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	c.Schedule(constantDelay(s.statsEvery), s.tick(s.stats))
	c.Schedule(constantDelay(s.historyEvery), s.tick(s.history))
	c.Start()

	s.cron = c
	s.state = StateRunning
}

func (s *Scheduler) stopLocked() {
	if s.state != StateRunning {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.state = StateStopped
}

// constantDelay is cron.Every without the rounding to whole seconds.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

func (s *Scheduler) tick(task Task) cron.Job {
	return cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		task(s.ctx)
	})
}

func (s *Scheduler) runRefresh(task Task) {
	defer s.refreshes.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dashboard refresh panicked", "panic", r)
		}
	}()
	task(s.ctx)
}
