// Package ametal holds the pieces shared by the interrupt-deferred scheduling
// core: the error taxonomy returned by every operation and the interrupt lock
// used to guard state shared between foreground code and interrupt handlers.
//
// The core itself lives in sub-packages:
//
//   - jobq: priority-bitmap queue of deferred jobs.
//   - isrdefer: job queue specialised for "ISR posts, main loop processes".
//   - softimer: delta-list software timers driven by a single hardware tick.
//   - nvic: multiplexer fanning one interrupt entry point out to per-IRQ handlers.
package ametal

import "errors"

// Errors returned by the core. Hot paths return these values unwrapped so
// callers in interrupt context can compare them without allocating; use
// errors.Is when the error may have been wrapped by an initialization path.
var (
	// ErrInvalid is returned on nil arguments, out of range values and use of
	// an uninitialized object where the operation cannot proceed.
	ErrInvalid = errors.New("ametal: invalid argument")
	// ErrBusy is returned when a job is already enqueued or a queue is already
	// being drained.
	ErrBusy = errors.New("ametal: resource busy")
	// ErrNotPermitted is returned when a module has not been initialized or a
	// fixed resource pool is exhausted.
	ErrNotPermitted = errors.New("ametal: operation not permitted")
)
