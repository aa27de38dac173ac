package taskqueue

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/cyyever/largedict/lib/common"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger(common.LoggerTaskQueue)

// ErrQueueClosed is returned by Submit once the queue was stopped
var ErrQueueClosed = errors.New("task queue closed")

// Handler processes a single task. It runs on one of the queue's workers.
type Handler[T any] func(task T)

// --------------------------------------------------------------------------
// TaskQueue
// --------------------------------------------------------------------------

// TaskQueue runs a fixed pool of workers against an unbounded queue of tasks.
//
// Thread-safety: All methods are safe for concurrent use.
type TaskQueue[T any] struct {
	name    string
	handler Handler[T]
	queue   *MPSC[T]
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once

	// abandon makes workers skip queued tasks instead of running them
	abandon atomic.Bool
	// pending counts queued and running tasks
	pending atomic.Int64
}

// New creates a task queue and starts its workers. workers < 1 is treated as 1.
func New[T any](handler Handler[T], workers int, name string) *TaskQueue[T] {
	if workers < 1 {
		workers = 1
	}

	tq := &TaskQueue[T]{
		name:    name,
		handler: handler,
		queue:   NewMPSC[T](),
		workers: workers,
	}

	tq.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go tq.work(i)
	}

	log.Debugf("queue %s started with %d workers", name, workers)
	return tq
}

// Submit appends a task to the queue. It never blocks.
// Returns ErrQueueClosed if the queue was stopped.
func (tq *TaskQueue[T]) Submit(task T) error {
	tq.pending.Add(1)
	if !tq.queue.Push(task) {
		tq.pending.Add(-1)
		return fmt.Errorf("%s: %w", tq.name, ErrQueueClosed)
	}
	return nil
}

// StopGracefully stops intake and blocks until every queued task was processed
func (tq *TaskQueue[T]) StopGracefully() {
	tq.stop(false)
}

// StopForced stops intake and blocks until running tasks returned.
// Tasks that did not start yet are dropped.
func (tq *TaskQueue[T]) StopForced() {
	tq.stop(true)
}

func (tq *TaskQueue[T]) stop(forced bool) {
	tq.stopOnce.Do(func() {
		if forced {
			tq.abandon.Store(true)
		}
		tq.queue.Close()
	})
	tq.wg.Wait()
	log.Debugf("queue %s stopped (forced=%v)", tq.name, forced)
}

// Pending returns the number of queued and running tasks
func (tq *TaskQueue[T]) Pending() int {
	return int(tq.pending.Load())
}

// Workers returns the number of worker goroutines
func (tq *TaskQueue[T]) Workers() int {
	return tq.workers
}

// Name returns the name the queue was created with
func (tq *TaskQueue[T]) Name() string {
	return tq.name
}

// IsClosed returns true once StopGracefully or StopForced was called
func (tq *TaskQueue[T]) IsClosed() bool {
	return tq.queue.IsClosed()
}

// --------------------------------------------------------------------------
// Worker
// --------------------------------------------------------------------------

func (tq *TaskQueue[T]) work(id int) {
	defer tq.wg.Done()

	for task := range tq.queue.Recv() {
		if tq.abandon.Load() {
			tq.pending.Add(-1)
			continue
		}
		tq.run(id, task)
	}
}

// run executes the handler and keeps the worker alive if it panics
func (tq *TaskQueue[T]) run(id int, task T) {
	defer tq.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("queue %s worker %d: task panicked: %v\n%s", tq.name, id, r, debug.Stack())
		}
	}()
	tq.handler(task)
}
