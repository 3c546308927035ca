// internal/scheduler/scheduler.go
package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handle identifies a scheduled task. The zero Handle is never issued.
type Handle uint64

// Scheduler owns a set of independently timed tasks. A periodic task is
// re-armed only after its body returns (fixed delay), so a task never
// overlaps with itself inside the scheduler.
type Scheduler struct {
	clock Clock
	log   *logrus.Entry

	mu     sync.Mutex
	nextID Handle
	tasks  map[Handle]*task
}

type task struct {
	id       Handle
	name     string
	interval time.Duration
	periodic bool
	fn       func()
	timer    Timer
}

// New builds a scheduler on the given clock. A nil clock means RealClock.
func New(clock Clock, logger *logrus.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		clock: clock,
		log:   logger.WithField("component", "scheduler"),
		tasks: make(map[Handle]*task),
	}
}

// Clock returns the clock driving the scheduler.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Schedule runs fn every interval until the returned handle is cancelled.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn func()) Handle {
	return s.add(name, interval, true, fn)
}

// After runs fn once after d unless cancelled first.
func (s *Scheduler) After(name string, d time.Duration, fn func()) Handle {
	return s.add(name, d, false, fn)
}

func (s *Scheduler) add(name string, d time.Duration, periodic bool, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &task{id: s.nextID, name: name, interval: d, periodic: periodic, fn: fn}
	s.tasks[t.id] = t
	s.arm(t)
	return t.id
}

// arm assumes s.mu is held.
func (s *Scheduler) arm(t *task) {
	t.timer = s.clock.AfterFunc(t.interval, func() { s.fire(t) })
}

func (s *Scheduler) fire(t *task) {
	s.mu.Lock()
	if s.tasks[t.id] != t {
		s.mu.Unlock()
		return
	}
	if !t.periodic {
		delete(s.tasks, t.id)
	}
	s.mu.Unlock()

	t.fn()

	if !t.periodic {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[t.id] == t {
		s.arm(t)
	}
}

// CancelAll stops the given tasks. Unknown or already cancelled handles are ignored.
func (s *Scheduler) CancelAll(handles ...Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range handles {
		if t, ok := s.tasks[h]; ok {
			s.cancel(t)
		}
	}
}

// Stop cancels every task the scheduler owns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		s.cancel(t)
	}
}

// cancel assumes s.mu is held.
func (s *Scheduler) cancel(t *task) {
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(s.tasks, t.id)
	s.log.WithField("task", t.name).Debug("task cancelled")
}

// Active reports how many tasks are still scheduled.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
