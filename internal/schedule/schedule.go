// Package schedule turns cron triggers into tasks run one at a time by a
// single worker.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/logging"
	"herald/internal/metrics"
)

// Func is a task body.
type Func func(ctx context.Context) error

type task struct {
	name string
	run  Func
}

// Scheduler owns the cron clock and the worker queue. A task whose name is
// already queued or running is dropped.
type Scheduler struct {
	cron  *cron.Cron
	queue chan task

	mu      sync.Mutex
	pending map[string]bool
	done    chan struct{}
	started bool
}

// New returns a scheduler evaluating cron expressions in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		queue:   make(chan task, 32),
		pending: map[string]bool{},
		done:    make(chan struct{}),
	}
}

// Add registers fn under name on the standard 5-field spec. An empty or
// invalid spec is logged and skipped; the return value reports registration.
func (s *Scheduler) Add(spec, name string, fn Func) bool {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		logging.Warn("schedule_skipped", logging.Fields{"task": name, "reason": "empty_cron"})
		return false
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Submit(name, fn) }); err != nil {
		logging.Warn("schedule_skipped", logging.Fields{"task": name, "cron": spec, "error": err.Error()})
		return false
	}
	logging.Info("schedule_registered", logging.Fields{"task": name, "cron": spec})
	return true
}

// Submit queues fn for the worker. It returns false when a task with the
// same name is already pending or the queue is full.
func (s *Scheduler) Submit(name string, fn Func) bool {
	s.mu.Lock()
	if s.pending[name] {
		s.mu.Unlock()
		logging.Warn("task_dropped", logging.Fields{"task": name, "reason": "already_pending"})
		return false
	}
	s.pending[name] = true
	s.mu.Unlock()

	select {
	case s.queue <- task{name: name, run: fn}:
		return true
	default:
		s.clear(name)
		logging.Warn("task_dropped", logging.Fields{"task": name, "reason": "queue_full"})
		return false
	}
}

func (s *Scheduler) clear(name string) {
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
}

// Start launches the worker and the cron clock. The worker exits when ctx is
// done; Stop waits for it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.work(ctx)
	s.cron.Start()
}

// Stop halts the clock and waits for the worker to finish its current task.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Scheduler) work(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			s.runTask(ctx, t)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, t task) {
	start := time.Now()
	defer s.clear(t.name)
	defer metrics.ObserveTask(t.name, start)
	defer func() {
		if r := recover(); r != nil {
			logging.Error("task_panic", logging.Fields{"task": t.name, "panic": fmt.Sprint(r)})
		}
	}()
	logging.Debug("task_start", logging.Fields{"task": t.name})
	if err := t.run(ctx); err != nil {
		logging.Error("task_failed", logging.Fields{"task": t.name, "error": err.Error()})
		return
	}
	logging.Debug("task_done", logging.Fields{"task": t.name, "elapsed": time.Since(start).String()})
}
