package internal

import "sync"

// --------------------------------------------------------------------------
// Pending loads
// --------------------------------------------------------------------------

// Load is the handle of a load in flight. Waiters block on Done, the loader
// sets Err before closing it.
type Load struct {
	done chan struct{}
	err  error
}

// Done is closed once the load finished
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Err returns the load error, only valid after Done is closed
func (l *Load) Err() error {
	return l.err
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table holds the state of every key, the resident values and the recency
// order of resident keys behind a single mutex. None of its operations block
// on I/O.
//
// Thread-safety: All Table methods are safe for concurrent use. A View is only
// valid inside the Do callback that received it.
type Table[K comparable, V any] struct {
	mu   sync.Mutex
	view View[K, V]
}

// View is the unlocked interface to the table contents, handed out by Do
type View[K comparable, V any] struct {
	states map[K]State
	values map[K]V
	order  *recency[K]
	counts [numStates]int
	loads  map[K]*Load
}

// NewTable creates an empty table
func NewTable[K comparable, V any]() *Table[K, V] {
	t := &Table[K, V]{}
	t.view.reset()
	return t
}

// Do runs fn with the table lock held, so several checks and updates
// happen atomically. fn must not block.
func (t *Table[K, V]) Do(fn func(v *View[K, V])) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.view)
}

// Mark sets the state of key
func (t *Table[K, V]) Mark(key K, s State) {
	t.Do(func(v *View[K, V]) { v.Mark(key, s) })
}

// State returns the state of key and whether the key is tracked
func (t *Table[K, V]) State(key K) (s State, ok bool) {
	t.Do(func(v *View[K, V]) { s, ok = v.State(key) })
	return
}

// Touch moves key to the most recent end of the recency order
func (t *Table[K, V]) Touch(key K) {
	t.Do(func(v *View[K, V]) { v.Touch(key) })
}

// Untrack removes every trace of key
func (t *Table[K, V]) Untrack(key K) {
	t.Do(func(v *View[K, V]) { v.Untrack(key) })
}

// Transition moves key from one state to another if it is in from
func (t *Table[K, V]) Transition(key K, from, to State) (ok bool) {
	t.Do(func(v *View[K, V]) { ok = v.Transition(key, from, to) })
	return
}

// OldestExcess returns the least recent resident keys above the watermark
func (t *Table[K, V]) OldestExcess(watermark int) (keys []K) {
	t.Do(func(v *View[K, V]) { keys = v.OldestExcess(watermark) })
	return
}

// Value returns the resident value of key
func (t *Table[K, V]) Value(key K) (val V, ok bool) {
	t.Do(func(v *View[K, V]) { val, ok = v.Value(key) })
	return
}

// SetValue stores a resident value for key
func (t *Table[K, V]) SetValue(key K, val V) {
	t.Do(func(v *View[K, V]) { v.SetValue(key, val) })
}

// DropValue forgets the resident value of key
func (t *Table[K, V]) DropValue(key K) {
	t.Do(func(v *View[K, V]) { v.DropValue(key) })
}

// Len returns the number of tracked keys
func (t *Table[K, V]) Len() (n int) {
	t.Do(func(v *View[K, V]) { n = v.Len() })
	return
}

// Keys returns all tracked keys accepted by filter (nil accepts all)
func (t *Table[K, V]) Keys(filter func(K, State) bool) (keys []K) {
	t.Do(func(v *View[K, V]) { keys = v.Keys(filter) })
	return
}

// Count returns the number of keys in state s
func (t *Table[K, V]) Count(s State) (n int) {
	t.Do(func(v *View[K, V]) { n = v.Count(s) })
	return
}

// Counts returns the number of keys per state
func (t *Table[K, V]) Counts() (counts map[State]int) {
	t.Do(func(v *View[K, V]) {
		counts = make(map[State]int, numStates)
		for s := State(0); s < numStates; s++ {
			counts[s] = v.counts[s]
		}
	})
	return
}

// Clear drops every key. Pending loads are released with err.
func (t *Table[K, V]) Clear(err error) {
	t.Do(func(v *View[K, V]) {
		for key := range v.loads {
			v.FinishLoad(key, err)
		}
		v.reset()
	})
}

// --------------------------------------------------------------------------
// View operations (caller holds the lock)
// --------------------------------------------------------------------------

func (v *View[K, V]) reset() {
	v.states = make(map[K]State)
	v.values = make(map[K]V)
	v.order = newRecency[K]()
	v.loads = make(map[K]*Load)
	v.counts = [numStates]int{}
}

// Mark sets the state of key, creating the entry if needed
func (v *View[K, V]) Mark(key K, s State) {
	if old, ok := v.states[key]; ok {
		v.counts[old]--
	}
	v.states[key] = s
	v.counts[s]++
}

func (v *View[K, V]) State(key K) (State, bool) {
	s, ok := v.states[key]
	return s, ok
}

// Transition is a compare-and-swap on the state of key
func (v *View[K, V]) Transition(key K, from, to State) bool {
	if s, ok := v.states[key]; !ok || s != from {
		return false
	}
	v.Mark(key, to)
	return true
}

// Touch moves key to the most recent end, inserting it if needed
func (v *View[K, V]) Touch(key K) {
	v.order.touch(key)
}

// Unlink removes key from the recency order only
func (v *View[K, V]) Unlink(key K) {
	v.order.remove(key)
}

// Linked reports whether key is in the recency order
func (v *View[K, V]) Linked(key K) bool {
	return v.order.contains(key)
}

// Untrack removes key from the recency order, the state map and the values
func (v *View[K, V]) Untrack(key K) {
	v.order.remove(key)
	if s, ok := v.states[key]; ok {
		v.counts[s]--
		delete(v.states, key)
	}
	delete(v.values, key)
}

// OldestExcess returns the oldest resident keys that exceed the watermark
func (v *View[K, V]) OldestExcess(watermark int) []K {
	if watermark < 0 {
		watermark = 0
	}
	return v.order.oldest(v.order.len() - watermark)
}

// ResidentOrder returns all keys of the recency order, oldest first
func (v *View[K, V]) ResidentOrder() []K {
	return v.order.oldest(v.order.len())
}

func (v *View[K, V]) Value(key K) (V, bool) {
	val, ok := v.values[key]
	return val, ok
}

func (v *View[K, V]) SetValue(key K, val V) {
	v.values[key] = val
}

func (v *View[K, V]) DropValue(key K) {
	delete(v.values, key)
}

func (v *View[K, V]) Len() int {
	return len(v.states)
}

func (v *View[K, V]) Count(s State) int {
	if s >= numStates {
		return 0
	}
	return v.counts[s]
}

func (v *View[K, V]) Keys(filter func(K, State) bool) []K {
	keys := make([]K, 0, len(v.states))
	for key, s := range v.states {
		if filter == nil || filter(key, s) {
			keys = append(keys, key)
		}
	}
	return keys
}

// StartLoad returns the pending load of key. started is true if the caller
// created it and is responsible for running the load.
func (v *View[K, V]) StartLoad(key K) (load *Load, started bool) {
	if l, ok := v.loads[key]; ok {
		return l, false
	}
	l := &Load{done: make(chan struct{})}
	v.loads[key] = l
	return l, true
}

// PendingLoad returns the load in flight for key, if any
func (v *View[K, V]) PendingLoad(key K) (*Load, bool) {
	l, ok := v.loads[key]
	return l, ok
}

// FinishLoad releases all waiters of the load of key
func (v *View[K, V]) FinishLoad(key K, err error) {
	l, ok := v.loads[key]
	if !ok {
		return
	}
	delete(v.loads, key)
	l.err = err
	close(l.done)
}
