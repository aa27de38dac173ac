// Package scheduler runs a single repeating maintenance action on a fixed
// interval until it is stopped.
//
// The action runs on one goroutine, so two runs never overlap. TriggerNow asks
// for an extra run without waiting for the next tick, which lets callers that
// wait on the action's effect (like a flush) make progress right away.
package scheduler
