// Package jobq implements a multi-priority queue of deferred jobs.
//
// Priorities are numbered from 0 (highest) to N-1 with 1 <= N <= MaxPriorities.
// Selecting the next job is a two level bitmap lookup: a group word with one
// bit per 32 priorities, then a job word for the group with one bit per
// non-empty priority bucket. Within a priority jobs run in post order.
//
// The queue never allocates. Jobs are owned by the caller and linked into the
// bucket lists through an embedded node.
package jobq

import (
	"fmt"
	"log/slog"

	"github.com/ametal-go/ametal"
	"github.com/ametal-go/ametal/internal/bitops"
	"github.com/ametal-go/ametal/internal/dlist"
	"github.com/ametal-go/ametal/internal/xlog"
)

// MaxPriorities is the largest number of priority levels a Queue supports,
// limited by the 32 bit group bitmap.
const MaxPriorities = 32 * 32

const (
	groupShift = 5
	wordMask   = 1<<groupShift - 1
)

const flagEnqueued = 1 << 0

// Func is the callback run when a job is processed.
type Func func(arg any)

// Job is a deferred unit of work. A Job may be posted again once it has been
// dequeued, including from its own callback.
type Job struct {
	fn    Func
	arg   any
	prio  uint
	flags uint32
	node  dlist.Node[Job]
}

// Init sets the job's callback, argument and priority. It must not be called
// while the job is enqueued.
func (j *Job) Init(fn Func, arg any, prio uint) {
	j.fn = fn
	j.arg = arg
	j.prio = prio
	j.flags = 0
	j.node.Value = j
}

// Pending reports whether the job is enqueued and waiting to run.
func (j *Job) Pending() bool { return j.flags&flagEnqueued != 0 }

// Priority returns the priority the job was initialized with. Priorities past
// the end of a queue run at that queue's lowest priority.
func (j *Job) Priority() uint { return j.prio }

// Bucket holds the jobs of a single priority level.
type Bucket = dlist.List[Job]

// Config configures a Queue.
type Config struct {
	// Priorities is the number of priority levels, 1..MaxPriorities.
	Priorities int

	// Locker guards the bitmaps and buckets. Defaults to ametal.DefaultLocker.
	Locker ametal.Locker
	Logger *slog.Logger
}

// Stats counts queue activity since Init.
type Stats struct {
	Posted    uint32
	Processed uint32

	// Rejected counts posts refused because the job was already enqueued.
	Rejected uint32
}

// Queue is a priority queue of jobs. The zero value must be initialized with
// Init before use.
type Queue struct {
	buckets     []Bucket
	jobBitmap   []uint32
	groupBitmap uint32
	n           uint
	running     bool
	lock        ametal.Locker
	log         xlog.Logger
	stats       Stats
}

// BitmapWords returns the number of bitmap words needed for n priorities.
func BitmapWords(n int) int {
	if n <= 0 {
		return 0
	}
	return int(bitops.Alignup(uint(n), 32) >> groupShift)
}

// NewStorage allocates the bucket and bitmap storage for n priorities. It is
// meant to be called once at init time.
func NewStorage(n int) ([]Bucket, []uint32) {
	if n <= 0 {
		return nil, nil
	}
	return make([]Bucket, n), make([]uint32, BitmapWords(n))
}

// Init prepares q to hold jobs in cfg.Priorities priority levels using the
// caller provided storage. buckets must hold at least cfg.Priorities entries
// and bitmap at least BitmapWords(cfg.Priorities) words.
func (q *Queue) Init(cfg Config, buckets []Bucket, bitmap []uint32) error {
	if q == nil || buckets == nil || bitmap == nil {
		return ametal.ErrInvalid
	}
	n := cfg.Priorities
	if n < 1 || n > MaxPriorities {
		return fmt.Errorf("jobq: %d priorities outside 1..%d: %w", n, MaxPriorities, ametal.ErrInvalid)
	}
	if len(buckets) < n || len(bitmap) < BitmapWords(n) {
		return fmt.Errorf("jobq: storage too small for %d priorities: %w", n, ametal.ErrInvalid)
	}
	*q = Queue{
		buckets:   buckets[:n],
		jobBitmap: bitmap[:BitmapWords(n)],
		n:         uint(n),
		lock:      ametal.LockerOrDefault(cfg.Locker),
		log:       xlog.New(cfg.Logger),
	}
	for i := range q.buckets {
		q.buckets[i].Init()
	}
	for i := range q.jobBitmap {
		q.jobBitmap[i] = 0
	}
	q.log.Debug("jobq:init", slog.Int("priorities", n), slog.Int("words", len(q.jobBitmap)))
	return nil
}

func (q *Queue) initialized() bool { return q != nil && q.n != 0 }

// Post enqueues j at the tail of its priority bucket. It returns ErrBusy if j
// is already enqueued in this or any other queue.
func (q *Queue) Post(j *Job) error {
	if !q.initialized() || j == nil || j.fn == nil {
		return ametal.ErrInvalid
	}
	prio := j.prio
	if prio >= q.n {
		prio = q.n - 1
	}
	s := q.lock.Lock()
	if j.flags&flagEnqueued != 0 {
		q.stats.Rejected++
		q.lock.Unlock(s)
		return ametal.ErrBusy
	}
	j.flags |= flagEnqueued
	j.node.Value = j
	group := prio >> groupShift
	q.groupBitmap |= 1 << group
	q.jobBitmap[group] |= 1 << (prio & wordMask)
	q.buckets[prio].PushBack(&j.node)
	q.stats.Posted++
	q.lock.Unlock(s)
	if q.log.TraceEnabled() {
		q.log.Trace("jobq:post", slog.Uint64("prio", uint64(prio)))
	}
	return nil
}

// Process runs queued jobs, highest priority first, until the queue is empty.
// Jobs posted while Process runs are picked up by the same call. Callbacks
// run with the lock released; a higher priority job posted from a callback
// runs after that callback returns, never preempting it.
//
// Process returns ErrBusy if another Process call on q is in progress. If a
// callback panics the guard is released and the remaining jobs stay queued.
func (q *Queue) Process() error {
	if !q.initialized() {
		return ametal.ErrInvalid
	}
	s := q.lock.Lock()
	if q.running {
		q.lock.Unlock(s)
		return ametal.ErrBusy
	}
	q.running = true
	defer q.stopRunning()
	for q.groupBitmap != 0 {
		group := uint(ffs(q.groupBitmap) - 1)
		prio := group<<groupShift + uint(ffs(q.jobBitmap[group])-1)
		bucket := &q.buckets[prio]
		j := bucket.PopFront().Value
		j.flags &^= flagEnqueued
		if bucket.Empty() {
			q.jobBitmap[group] &^= 1 << (prio & wordMask)
			if q.jobBitmap[group] == 0 {
				q.groupBitmap &^= 1 << group
			}
		}
		q.stats.Processed++
		q.lock.Unlock(s)

		if q.log.TraceEnabled() {
			q.log.Trace("jobq:run", slog.Uint64("prio", uint64(prio)))
		}
		j.fn(j.arg)

		s = q.lock.Lock()
	}
	q.lock.Unlock(s)
	return nil
}

func (q *Queue) stopRunning() {
	s := q.lock.Lock()
	q.running = false
	q.lock.Unlock(s)
}

// Empty reports whether no job is enqueued.
func (q *Queue) Empty() bool {
	if !q.initialized() {
		return true
	}
	s := q.lock.Lock()
	empty := q.groupBitmap == 0
	q.lock.Unlock(s)
	return empty
}

// Priorities returns the number of priority levels of q.
func (q *Queue) Priorities() int {
	if q == nil {
		return 0
	}
	return int(q.n)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	if !q.initialized() {
		return Stats{}
	}
	s := q.lock.Lock()
	st := q.stats
	q.lock.Unlock(s)
	return st
}
