package taskqueue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Lock-free Multi-Producer Single-Consumer queue
// --------------------------------------------------------------------------

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// MPSC is an unbounded multi-producer single-consumer queue.
//
// Producers append with a CAS on the tail of a linked list. A single internal
// consumer goroutine moves items from the list onto the channel returned by
// Recv, so any number of receivers may drain it.
//
// Guarantees:
//   - Push never blocks on the consumer (the list grows as needed)
//   - every item pushed before Close is delivered before Recv is closed
//   - items of a single producer are delivered in push order
type MPSC[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	out  chan T

	// closeMu makes Close wait for Push calls that already passed the
	// closed check, so the consumer never exits with items still linked
	closeMu sync.RWMutex
	closed  atomic.Bool

	// condition variable for waking the consumer
	mu   sync.Mutex
	cond *sync.Cond

	consumer sync.WaitGroup
}

// NewMPSC creates a new queue and starts its consumer goroutine
func NewMPSC[T any]() *MPSC[T] {
	// sentinel node, head always points at the last consumed node
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value T) bool {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already helped, tail still moves forward
				q.tail.CompareAndSwap(tailNode, newNode)

				// signal under the lock, otherwise the wakeup can fall between
				// the consumer's emptiness check and its Wait
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves items from the linked list to the output channel
func (q *MPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	var zero T
	for {
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}

			value := next.value
			q.head.Store(next)
			q.out <- value

			// help go gc, the node is the new sentinel now
			next.value = zero
		}

		q.mu.Lock()
		for q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		drained := q.head.Load().next.Load() == nil
		q.mu.Unlock()

		// closed is only observed after every admitted Push has linked its node
		if drained && q.closed.Load() {
			return
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// The channel is closed after Close once every queued item was received.
func (q *MPSC[T]) Recv() <-chan T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered.
//
// Thread-safety: This method is thread-safe and idempotent.
func (q *MPSC[T]) Close() {
	q.closeMu.Lock()
	q.closed.Store(true)
	q.closeMu.Unlock()

	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the items not yet handed to the channel.
// This is O(n) and should only be used for debugging.
func (q *MPSC[T]) Len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			return count
		}
		count++
		current = next
	}
}
