// Package completion bridges host-side asynchronous work back into
// suspended module tasks.
//
// On first poll an Operation creates its Record, leaks it into the token
// table, and issues the host request carrying the token. If the host has
// not answered by the time the request returns, the task's waker is stored
// and the task suspends. Later the host reserves scratch space, writes the
// result there and calls the completion entry point with the token;
// Bridge.Complete reclaims the record (exactly once), drains scratch into it
// under the record lock, releases the lock, and wakes the task. The next
// poll returns the result.
//
// The record is re-checked right after the request is issued, so a host
// that completes synchronously, before the first waker is stored, is
// handled the same way as a late one.
//
// Dropping an operation does not free its record: the token table keeps it
// until the host's completion arrives, however late.
package completion
