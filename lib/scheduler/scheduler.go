package scheduler

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyyever/largedict/lib/common"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger(common.LoggerScheduler)

// ErrAlreadyRunning is returned by Start if the scheduler loop is running
var ErrAlreadyRunning = errors.New("scheduler already running")

// Scheduler invokes one maintenance action periodically on its own goroutine.
//
// Thread-safety: All methods are safe for concurrent use.
type Scheduler struct {
	name string

	mu      sync.Mutex // guards stop and done
	stop    chan struct{}
	done    chan struct{}
	trigger chan struct{}

	running atomic.Bool
	runs    atomic.Uint64
}

// New creates a stopped scheduler. The name only shows up in log messages.
func New(name string) *Scheduler {
	return &Scheduler{
		name:    name,
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the loop calling action every interval.
// Returns ErrAlreadyRunning if the loop was started before and not stopped.
func (s *Scheduler) Start(interval time.Duration, action func()) error {
	if interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.loop(interval, action, stop, done)
	log.Debugf("scheduler %s started (interval %s)", s.name, interval)
	return nil
}

// Stop ends the loop and blocks until a running action returned.
// Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.running.Store(false)
	log.Debugf("scheduler %s stopped after %d runs", s.name, s.runs.Load())
}

// TriggerNow requests one extra run as soon as the loop is idle.
// Requests are coalesced while one is outstanding.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Runs returns the number of completed action runs
func (s *Scheduler) Runs() uint64 {
	return s.runs.Load()
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// loop is the scheduler goroutine
//
// Thread-safety: only ever runs once per Start
func (s *Scheduler) loop(interval time.Duration, action func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-s.trigger:
		}
		s.runOnce(action)
	}
}

func (s *Scheduler) runOnce(action func()) {
	defer s.runs.Add(1)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scheduler %s: action panicked: %v\n%s", s.name, r, debug.Stack())
		}
	}()
	action()
}
