// Package scheduler runs named periodic tasks: delta ingest,
// sync cycles, status broadcast, and metadata-store housekeeping. Each task
// tracks its own interval, a running flag that prevents self-overlap, an
// execution count, the last run's start time, and a moving average of its
// duration.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/auriora/onedrivefs/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Task is one named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	// Deadline, when positive, is a timeout on each run measured from the
	// run's start; the run's context is also cancelled as soon as the
	// Scheduler's context is.
	Deadline time.Duration
	Run      func(ctx context.Context) error

	mu          sync.Mutex
	running     bool
	execCount   uint64
	lastStartAt time.Time
	avgDuration time.Duration
}

// Stats is a point-in-time snapshot of a task's execution history.
type Stats struct {
	Name        string
	Running     bool
	ExecCount   uint64
	LastStartAt time.Time
	AvgDuration time.Duration
}

func (t *Task) stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Name: t.Name, Running: t.running, ExecCount: t.execCount, LastStartAt: t.lastStartAt, AvgDuration: t.avgDuration}
}

// tryRun executes the task if it is not already running, skipping this tick
// entirely on overlap rather than queueing a second concurrent run.
func (t *Task) tryRun(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.lastStartAt = time.Now()
	t.mu.Unlock()

	logger := logging.For("scheduler").With().Str("task", t.Name).Logger()

	runCtx := ctx
	var cancel context.CancelFunc
	if t.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Deadline)
		defer cancel()
	}

	start := time.Now()
	if err := t.Run(runCtx); err != nil {
		logger.Error().Err(err).Msg("task run failed")
	}
	elapsed := time.Since(start)

	t.mu.Lock()
	t.running = false
	t.execCount++
	if t.avgDuration == 0 {
		t.avgDuration = elapsed
	} else {
		// exponential moving average, alpha=0.2
		t.avgDuration = t.avgDuration + (elapsed-t.avgDuration)/5
	}
	t.mu.Unlock()
}

// Scheduler owns a set of Tasks and drives each on its own ticker.
type Scheduler struct {
	tasks []*Task
}

func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a task. Must be called before Run.
func (s *Scheduler) Register(t *Task) {
	s.tasks = append(s.tasks, t)
}

// Stats returns a snapshot of every registered task, in registration order.
func (s *Scheduler) Stats() []Stats {
	out := make([]Stats, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.stats()
	}
	return out
}

// Run drives every registered task on its own ticker until ctx is
// cancelled, then waits (bounded by each task's Deadline) for any in-flight
// run to finish before returning, using errgroup to capture the first
// error across goroutines.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			ticker := time.NewTicker(t.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					t.tryRun(ctx)
				}
			}
		})
	}
	return g.Wait()
}
