// Package scheduler runs the relay's periodic maintenance tasks: deal
// sync/expiry, orphan pin sweep, public link expiry, counter
// reconciliation, session reaping, and the relay heartbeat (spec §5's
// "Scheduled Tasks"). Each task owns its own ticker and is independently
// cancellable: a ticker and a select on ctx.Done() per task.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is one named, independently scheduled unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Tasks, each on its own ticker, until Stop
// is called or the parent context is canceled.
type Scheduler struct {
	log   *logrus.Logger
	tasks []Task

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler over tasks. A task with a non-positive interval is
// disabled, matching spec §5's "a 0 interval disables the task".
func New(log *logrus.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{log: log, tasks: tasks}
}

// Start launches every enabled task in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, t := range s.tasks {
		if t.Interval <= 0 {
			s.log.WithField("task", t.Name).Info("scheduler: task disabled")
			continue
		}
		t := t
		s.wg.Add(1)
		go s.runLoop(ctx, t)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Run(ctx); err != nil {
				s.log.WithFields(logrus.Fields{"task": t.Name, "error": err}).Warn("scheduler: task failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels every running task and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
