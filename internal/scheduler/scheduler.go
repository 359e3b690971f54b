// Package scheduler runs monitoring tasks on independent fixed cadences.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrBusy the task is already running.
var ErrBusy = errors.New("task is already running")

// ErrUnknownTask no task is registered under the name.
var ErrUnknownTask = errors.New("unknown task")

const defaultCycleTimeout = 45 * time.Second

// State gate state of a task.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Outcome result of the last finished cycle.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Task unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Status snapshot of a task.
type Status struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	State       string        `json:"state"`
	LastOutcome Outcome       `json:"last_outcome,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	LastRun     time.Time     `json:"last_run,omitempty"`
	Runs        int64         `json:"runs"`
	Skipped     int64         `json:"skipped"`
}

type failureReporter interface {
	Diagnostic(ctx context.Context, task string, err error)
}

// Config scheduler settings.
type Config struct {
	// CycleTimeout bounds a single task cycle.
	CycleTimeout time.Duration
	// RunOnStart runs every task once as soon as the scheduler starts.
	RunOnStart bool
}

type task struct {
	Task

	state   atomic.Int32
	runs    atomic.Int64
	skipped atomic.Int64

	mu          sync.Mutex
	lastOutcome Outcome
	lastErr     error
	lastRun     time.Time
}

// Scheduler owns a set of tasks, each guarded by an Idle/Running gate so a
// task never overlaps with its own previous invocation.
type Scheduler struct {
	l        *zap.Logger
	tasks    map[string]*task
	order    []string
	timeout  time.Duration
	onStart  bool
	metrics  *metrics.Metrics
	reporter failureReporter
	inflight sync.WaitGroup
}

// New creates a scheduler. metrics and reporter may be nil.
func New(l *zap.Logger, cfg Config, m *metrics.Metrics, reporter failureReporter, tasks ...Task) (*Scheduler, error) {
	timeout := cfg.CycleTimeout
	if timeout <= 0 {
		timeout = defaultCycleTimeout
	}

	s := &Scheduler{
		l:        l.With(zap.String("component", "scheduler")),
		tasks:    make(map[string]*task, len(tasks)),
		timeout:  timeout,
		onStart:  cfg.RunOnStart,
		metrics:  m,
		reporter: reporter,
	}

	for _, t := range tasks {
		if t.Name == "" || t.Run == nil {
			return nil, errors.New("task name and function are required")
		}
		if t.Interval <= 0 {
			return nil, errors.Errorf("task %s: interval must be positive", t.Name)
		}
		if _, ok := s.tasks[t.Name]; ok {
			return nil, errors.Errorf("task %s registered twice", t.Name)
		}
		s.tasks[t.Name] = &task{Task: t}
		s.order = append(s.order, t.Name)
	}

	return s, nil
}

// Run starts one ticker loop per task and blocks until ctx is cancelled and
// every in-flight cycle has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, name := range s.order {
		t := s.tasks[name]
		g.Go(func() error {
			return s.loop(gctx, t)
		})
	}

	err := g.Wait()
	s.inflight.Wait()
	s.l.Info("scheduler stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, t *task) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	s.l.Info("starting task loop", zap.String("task", t.Name), zap.Duration("interval", t.Interval))

	if s.onStart {
		s.dispatch(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			s.l.Debug("context done, stopping task loop", zap.String("task", t.Name))
			return ctx.Err()
		case <-ticker.C:
			s.dispatch(ctx, t)
		}
	}
}

// dispatch starts a cycle in the background or skips the tick when the
// previous cycle is still running.
func (s *Scheduler) dispatch(ctx context.Context, t *task) {
	if !t.state.CompareAndSwap(int32(Idle), int32(Running)) {
		t.skipped.Add(1)
		s.metrics.TickSkipped(t.Name)
		s.l.Debug("task still running, skipping tick", zap.String("task", t.Name))
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_ = s.execute(ctx, t)
	}()
}

// Trigger runs the task now and waits for the cycle to finish.
// Returns ErrBusy when the task is already running.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return errors.Wrap(ErrUnknownTask, name)
	}
	if !t.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return errors.Wrap(ErrBusy, name)
	}
	return s.execute(ctx, t)
}

// execute runs one cycle of a task that is already in the Running state.
func (s *Scheduler) execute(ctx context.Context, t *task) error {
	defer t.state.Store(int32(Idle))

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	err := t.Run(cctx)
	took := time.Since(started)

	t.runs.Add(1)
	t.mu.Lock()
	t.lastRun = started
	t.lastErr = err
	t.lastOutcome = OutcomeSucceeded
	if err != nil {
		t.lastOutcome = OutcomeFailed
	}
	t.mu.Unlock()

	s.metrics.TaskFinished(t.Name, err, took)

	if err != nil {
		s.l.Error("task failed", zap.String("task", t.Name), zap.Duration("took", took), zap.Error(err))
		if s.reporter != nil && ctx.Err() == nil {
			s.reporter.Diagnostic(ctx, t.Name, err)
		}
		return err
	}

	s.l.Debug("task succeeded", zap.String("task", t.Name), zap.Duration("took", took))
	return nil
}

// State returns the gate state of the task.
func (s *Scheduler) State(name string) (State, error) {
	t, ok := s.tasks[name]
	if !ok {
		return Idle, errors.Wrap(ErrUnknownTask, name)
	}
	return State(t.state.Load()), nil
}

// Statuses returns a snapshot of every task in registration order.
func (s *Scheduler) Statuses() []Status {
	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		t := s.tasks[name]
		t.mu.Lock()
		st := Status{
			Name:        t.Name,
			Interval:    t.Interval,
			State:       State(t.state.Load()).String(),
			LastOutcome: t.lastOutcome,
			LastRun:     t.lastRun,
			Runs:        t.runs.Load(),
			Skipped:     t.skipped.Load(),
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		t.mu.Unlock()
		out = append(out, st)
	}
	return out
}
