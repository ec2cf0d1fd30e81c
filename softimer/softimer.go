// Package softimer multiplexes periodic software timers onto one hardware
// tick source.
//
// Armed timers are kept in a delta list sorted by expiry: each timer stores
// the ticks remaining after its predecessor expires, so a tick only touches
// the head of the list. Timers always re-arm with the period they were last
// started with until stopped.
package softimer

import (
	"log/slog"
	"math"

	"github.com/ametal-go/ametal"
	"github.com/ametal-go/ametal/internal/bitops"
	"github.com/ametal-go/ametal/internal/dlist"
	"github.com/ametal-go/ametal/internal/xlog"
)

// Func is called when a timer expires.
type Func func(arg any)

// Config configures a Module.
type Config struct {
	// RateHz is the frequency at which Tick is called. Must be non-zero.
	RateHz uint32

	// Locker guards the timer list. Defaults to ametal.DefaultLocker.
	Locker ametal.Locker
	Logger *slog.Logger
}

// Stats counts module activity since Init.
type Stats struct {
	Ticks uint32
	Fired uint32
}

// Module owns the list of armed timers driven by one tick source.
type Module struct {
	list  dlist.List[Timer]
	rate  uint32
	lock  ametal.Locker
	log   xlog.Logger
	stats Stats
}

// Timer is a periodic software timer. Its storage is owned by the caller.
type Timer struct {
	// ticks is relative to the expiry of the previous timer in the list.
	ticks       uint32
	repeatTicks uint32
	fn          Func
	arg         any
	node        dlist.Node[Timer]
	mod         *Module
}

// Init sets the tick rate and empties the timer list. Timers armed before a
// re-Init are disarmed and keep their binding to m.
func (m *Module) Init(cfg Config) error {
	if m == nil || cfg.RateHz == 0 {
		return ametal.ErrInvalid
	}
	if m.lock != nil {
		s := m.lock.Lock()
		for m.list.PopFront() != nil {
		}
		m.lock.Unlock(s)
	}
	m.lock = ametal.LockerOrDefault(cfg.Locker)
	m.log = xlog.New(cfg.Logger)
	s := m.lock.Lock()
	m.list.Init()
	m.rate = cfg.RateHz
	m.stats = Stats{}
	m.lock.Unlock(s)
	m.log.Debug("softimer:init", slog.Uint64("rateHz", uint64(cfg.RateHz)))
	return nil
}

// Rate returns the tick frequency in Hz, or 0 if m is not initialized.
func (m *Module) Rate() uint32 {
	if m == nil {
		return 0
	}
	return m.rate
}

// MsToTicks converts a duration in milliseconds to ticks, rounding up. The
// result is at least one tick.
func (m *Module) MsToTicks(ms uint32) uint32 {
	ticks := bitops.CeilDiv(uint64(m.rate)*uint64(ms), 1000)
	return uint32(bitops.Clamp(ticks, 1, math.MaxUint32))
}

// Stats returns a snapshot of the module counters.
func (m *Module) Stats() Stats {
	if m == nil || m.rate == 0 {
		return Stats{}
	}
	s := m.lock.Lock()
	st := m.stats
	m.lock.Unlock(s)
	return st
}

// Len returns the number of armed timers.
func (m *Module) Len() int {
	if m == nil || m.rate == 0 {
		return 0
	}
	s := m.lock.Lock()
	n := m.list.Len()
	m.lock.Unlock(s)
	return n
}

// Tick advances time by one tick and runs every timer that expires. It must
// be called at the configured rate, usually from a timer interrupt.
//
// An expiring timer is re-armed before its callback runs, so the callback
// may stop or restart it. Callbacks run with the lock released.
func (m *Module) Tick() {
	if m == nil || m.rate == 0 {
		return
	}
	s := m.lock.Lock()
	m.stats.Ticks++
	head := m.list.Front()
	if head != nil && head.Value.ticks != 0 {
		head.Value.ticks--
	}
	for {
		head = m.list.Front()
		if head == nil || head.Value.ticks != 0 {
			break
		}
		t := head.Value
		m.remove(t)
		m.add(t, t.repeatTicks)
		m.stats.Fired++
		m.lock.Unlock(s)

		if m.log.TraceEnabled() {
			m.log.Trace("softimer:fire", slog.Uint64("repeat", uint64(t.repeatTicks)))
		}
		if t.fn != nil {
			t.fn(t.arg)
		}

		s = m.lock.Lock()
	}
	m.lock.Unlock(s)
}

// add links t into the delta list so that it expires ticks from now. Ties
// go after timers already in the list. Must be called with the lock held.
func (m *Module) add(t *Timer, ticks uint32) {
	var at *dlist.Node[Timer]
	for n := m.list.Front(); n != nil; n = m.list.Next(n) {
		if ticks < n.Value.ticks {
			at = n
			break
		}
		ticks -= n.Value.ticks
	}
	t.ticks = ticks
	m.list.InsertBefore(&t.node, at)
	if at != nil {
		at.Value.ticks -= ticks
	}
}

// remove unlinks t and hands its remaining delta to its successor. Must be
// called with the lock held.
func (m *Module) remove(t *Timer) {
	if !t.node.Linked() {
		return
	}
	if next := m.list.Next(&t.node); next != nil {
		next.Value.ticks += t.ticks
	}
	m.list.Remove(&t.node)
}

// Init binds t to module m with callback fn. It returns ErrNotPermitted if m
// has not been initialized. Re-initializing an armed timer disarms it, also
// when it was armed on another module.
func (t *Timer) Init(m *Module, fn Func, arg any) error {
	if t == nil {
		return ametal.ErrInvalid
	}
	if m == nil || m.rate == 0 {
		return ametal.ErrNotPermitted
	}
	if old := t.mod; old != nil {
		s := old.lock.Lock()
		old.remove(t)
		old.lock.Unlock(s)
	}
	s := m.lock.Lock()
	t.node = dlist.Node[Timer]{Value: t}
	t.ticks = 0
	t.repeatTicks = 0
	t.fn = fn
	t.arg = arg
	t.mod = m
	m.lock.Unlock(s)
	return nil
}

// Start arms t to expire after ms milliseconds and every ms milliseconds
// thereafter. Starting an armed timer restarts it from now.
func (t *Timer) Start(ms uint32) error {
	if t == nil || t.mod == nil {
		return ametal.ErrNotPermitted
	}
	return t.StartTicks(t.mod.MsToTicks(ms))
}

// StartTicks is like Start with the period given in ticks. A zero period is
// raised to one tick.
func (t *Timer) StartTicks(ticks uint32) error {
	if t == nil || t.mod == nil {
		return ametal.ErrNotPermitted
	}
	if ticks == 0 {
		ticks = 1
	}
	m := t.mod
	s := m.lock.Lock()
	m.remove(t)
	t.repeatTicks = ticks
	m.add(t, ticks)
	m.lock.Unlock(s)
	if m.log.TraceEnabled() {
		m.log.Trace("softimer:start", slog.Uint64("ticks", uint64(ticks)))
	}
	return nil
}

// Stop disarms t. Stopping a timer that is not armed does nothing.
func (t *Timer) Stop() error {
	if t == nil || t.mod == nil {
		return ametal.ErrNotPermitted
	}
	m := t.mod
	s := m.lock.Lock()
	m.remove(t)
	m.lock.Unlock(s)
	return nil
}

// Armed reports whether t is in its module's list.
func (t *Timer) Armed() bool {
	if t == nil || t.mod == nil {
		return false
	}
	s := t.mod.lock.Lock()
	armed := t.node.Linked()
	t.mod.lock.Unlock(s)
	return armed
}

// Period returns the re-arm period in ticks set by the last start.
func (t *Timer) Period() uint32 {
	if t == nil || t.mod == nil {
		return 0
	}
	s := t.mod.lock.Lock()
	period := t.repeatTicks
	t.mod.lock.Unlock(s)
	return period
}

// Remaining returns the number of ticks until t next expires, or 0 if t is
// not armed. It walks the list up to t.
func (t *Timer) Remaining() uint32 {
	if t == nil || t.mod == nil {
		return 0
	}
	m := t.mod
	s := m.lock.Lock()
	defer m.lock.Unlock(s)
	if !t.node.Linked() {
		return 0
	}
	var sum uint32
	for n := m.list.Front(); n != nil; n = m.list.Next(n) {
		sum += n.Value.ticks
		if n == &t.node {
			break
		}
	}
	return sum
}
