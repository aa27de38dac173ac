// Package taskqueue provides an unbounded work queue served by a fixed number
// of worker goroutines.
//
// A TaskQueue is fed through Submit, which never blocks. Workers pull tasks
// from a lock-free multi-producer queue (MPSC) and hand them to the handler
// given at construction. A panicking handler is logged and the worker keeps
// running.
//
// Shutdown comes in two flavours:
//
//   - StopGracefully: no new tasks are accepted, the backlog is drained
//   - StopForced: no new tasks are accepted, queued tasks are dropped and only
//     the tasks already running are waited for
//
// With a single worker tasks run in submission order. With more workers tasks
// run concurrently and no ordering is implied.
//
// Example:
//
//	q := taskqueue.New(func(key string) { save(key) }, 8, "write")
//	_ = q.Submit("a")
//	q.StopGracefully()
package taskqueue
