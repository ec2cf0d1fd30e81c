// Package isrdefer specialises a job queue for the pattern where interrupt
// handlers post follow-up work and the main loop, or a low priority software
// interrupt, processes it.
//
// A typical setup pends a software interrupt from the notify hook and calls
// JobProcess from that interrupt's handler:
//
//	var deferred isrdefer.Defer
//	deferred.Init(isrdefer.Config{Priorities: 8, Notify: pendSWI})
//	...
//	func uartISR() { deferred.JobAdd(&rxJob) }
//	func swiISR()  { deferred.JobProcess() }
package isrdefer

import (
	"log/slog"

	"github.com/ametal-go/ametal"
	"github.com/ametal-go/ametal/internal/xlog"
	"github.com/ametal-go/ametal/jobq"
)

// Config configures a Defer.
type Config struct {
	// Priorities is the number of job priority levels, 1..jobq.MaxPriorities.
	Priorities int

	// Notify, if not nil, is called after every successful JobAdd. It runs in
	// the context of the caller of JobAdd so it must be short and idempotent,
	// pending a software interrupt is the intended use.
	Notify    func(arg any)
	NotifyArg any
	Locker    ametal.Locker
	Logger    *slog.Logger
}

// Defer is a job queue with a "work arrived" notification hook.
type Defer struct {
	q         jobq.Queue
	notify    func(arg any)
	notifyArg any
	log       xlog.Logger
	inited    bool
}

// JobInit initializes j. It is the same as j.Init.
func JobInit(j *jobq.Job, fn jobq.Func, arg any, prio uint) {
	j.Init(fn, arg, prio)
}

// Init allocates the queue storage for cfg.Priorities and stores the notify
// hook. It must be called once, before any JobAdd, and is the only place
// Defer allocates.
func (d *Defer) Init(cfg Config) error {
	if d == nil {
		return ametal.ErrInvalid
	}
	buckets, bitmap := jobq.NewStorage(cfg.Priorities)
	err := d.q.Init(jobq.Config{
		Priorities: cfg.Priorities,
		Locker:     cfg.Locker,
		Logger:     cfg.Logger,
	}, buckets, bitmap)
	if err != nil {
		return err
	}
	d.notify = cfg.Notify
	d.notifyArg = cfg.NotifyArg
	d.log = xlog.New(cfg.Logger)
	d.inited = true
	d.log.Debug("isrdefer:init", slog.Int("priorities", cfg.Priorities), slog.Bool("notify", cfg.Notify != nil))
	return nil
}

// JobAdd posts j. It returns ErrNotPermitted if d was never initialized and
// otherwise the result of posting, ErrBusy meaning j is already pending.
// The notify hook runs after every successful add.
func (d *Defer) JobAdd(j *jobq.Job) error {
	if d == nil || !d.inited {
		return ametal.ErrNotPermitted
	}
	err := d.q.Post(j)
	if err != nil {
		return err
	}
	if d.notify != nil {
		d.notify(d.notifyArg)
	}
	return nil
}

// JobProcess runs every pending job, see jobq.Queue.Process.
func (d *Defer) JobProcess() error {
	if d == nil || !d.inited {
		return ametal.ErrNotPermitted
	}
	return d.q.Process()
}

// Pending reports whether any job is waiting to be processed.
func (d *Defer) Pending() bool {
	if d == nil || !d.inited {
		return false
	}
	return !d.q.Empty()
}

// Stats returns the counters of the underlying queue.
func (d *Defer) Stats() jobq.Stats {
	if d == nil || !d.inited {
		return jobq.Stats{}
	}
	return d.q.Stats()
}
