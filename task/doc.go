// Package task provides the poll-based suspension primitives the completion
// bridge is built on: wakers, futures, a blocking driver and a per-context
// executor.
//
// A task that waits on the host returns Pending from Poll after storing its
// Waker. It consumes no goroutine time until the host's completion wakes it,
// at which point the executor polls it again.
package task
