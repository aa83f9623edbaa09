package mirror

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// LeadershipChecker reports whether this process currently holds
// Replication Log leadership; like the Session Sweeper, the tick loop
// only enqueues work while true, so a non-leader replica's mirrors stay
// idle rather than racing the leader's writes.
type LeadershipChecker func() bool

// Scheduler is the Mirror Scheduler for one replica: a 1-second tick
// loop over MirrorLister's current configuration, feeding an unbounded
// taskQueue drained by a bounded worker pool.
type Scheduler struct {
	lister   MirrorLister
	exec     func(Task) (Result, error)
	listener Listener
	isLeader LeadershipChecker
	zone     string
	log      logrus.FieldLogger

	queue *taskQueue

	mu        sync.Mutex
	schedules map[string]cron.Schedule
	lastTick  map[string]time.Time
	running   map[string]bool

	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a Scheduler with numWorkers goroutines draining
// the shared unbounded queue. zone is this replica's zone tag, used to
// skip zone-pinned mirrors that don't match (spec.md 4.H's "replicated
// zone variant"). exec performs one Task synchronously within a worker.
func NewScheduler(lister MirrorLister, numWorkers int, zone string, isLeader LeadershipChecker, listener Listener, exec func(Task) (Result, error), log logrus.FieldLogger) *Scheduler {
	if listener == nil {
		listener = NopListener{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scheduler{
		lister:    lister,
		exec:      exec,
		listener:  listener,
		isLeader:  isLeader,
		zone:      zone,
		log:       log,
		queue:     newTaskQueue(),
		schedules: map[string]cron.Schedule{},
		lastTick:  map[string]time.Time{},
		running:   map[string]bool{},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		go s.worker()
	}
	return s
}

// Start begins the 1-second tick loop in a background goroutine.
func (s *Scheduler) Start() {
	go s.tickLoop()
}

// Stop halts the tick loop, waiting for a tick already in progress to
// return, then closes the task queue so each worker exits once the queue
// is drained. It does not wait for the workers or for a running task to
// finish, and it blocks if Start was never called.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.queue.close()
}

func (s *Scheduler) tickLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	if s.isLeader != nil && !s.isLeader() {
		return
	}
	mirrors, err := s.lister.ListMirrors()
	if err != nil {
		s.log.WithError(err).Warn("mirror scheduler: listing mirrors")
		return
	}
	for _, m := range mirrors {
		if !m.Enabled {
			continue
		}
		if m.Zone != "" && m.Zone != s.zone {
			continue
		}
		if s.due(m, now) {
			s.queue.push(Task{Mirror: m, Scheduled: now})
		}
	}
}

// due reports whether m's cron schedule has a fire time between the
// previous tick this mirror was evaluated at and now, and the mirror
// isn't already queued or executing — a still-busy mirror simply has its
// due tick skipped rather than queued again (spec.md 4.H's backpressure
// note). A due mirror is marked busy here, at enqueue time.
func (s *Scheduler) due(m Mirror, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[m.ID] {
		return false
	}

	sched, ok := s.schedules[m.ID]
	if !ok {
		parsed, err := cron.ParseStandard(m.Schedule)
		if err != nil {
			s.log.WithError(err).WithField("mirror", m.ID).Warn("mirror scheduler: invalid schedule")
			return false
		}
		sched = parsed
		s.schedules[m.ID] = sched
	}

	last, ok := s.lastTick[m.ID]
	if !ok {
		last = now.Add(-time.Second)
	}
	s.lastTick[m.ID] = now

	fire := sched.Next(last).Before(now) || sched.Next(last).Equal(now)
	if fire {
		// runTask clears this once the task has run
		s.running[m.ID] = true
	}
	return fire
}

func (s *Scheduler) worker() {
	for {
		task, ok := s.queue.pop()
		if !ok {
			return
		}
		s.runTask(task)
	}
}

func (s *Scheduler) runTask(task Task) {
	id := task.Mirror.ID
	s.mu.Lock()
	s.running[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[id] = false
		s.mu.Unlock()
	}()

	s.listener.OnStart(task)
	result, err := s.exec(task)
	if err != nil {
		s.listener.OnError(task, err)
		return
	}
	s.listener.OnComplete(task, result)
}

// capError builds the MirrorException spec.md 4.H describes for a task
// whose tree exceeds its configured caps.
func capError(kind, mirrorID string, limit int64, actual int64) error {
	return dogmaerrors.New(dogmaerrors.MirrorError, "mirror %s: contains more than %d %s (has %d)", mirrorID, limit, kind, actual)
}
