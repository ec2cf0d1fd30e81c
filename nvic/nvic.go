// Package nvic multiplexes a contiguous range of interrupt numbers onto a
// fixed pool of handler slots.
//
// All governed interrupts share one entry point, ExcEintHandler, which looks
// up the active interrupt number and calls the handler connected to it.
// Connect and Disconnect may be called at any time; slot updates are done with
// interrupts masked so a dispatch never observes a half written entry.
package nvic

import (
	"log/slog"
	"reflect"

	"github.com/ametal-go/ametal"
	"github.com/ametal-go/ametal/internal/xlog"
)

// NotConnected marks an interrupt number without a handler slot in the map.
const NotConnected = 0xFF

// MaxSlots is the largest handler pool a map of uint8 entries can address.
const MaxSlots = NotConnected

// Handler services an interrupt.
type Handler func(arg any)

// ISRInfo is a handler slot. A slot is free when Handler is nil.
type ISRInfo struct {
	Handler Handler
	Arg     any
}

// Controller is the interrupt controller hardware the multiplexer drives.
type Controller interface {
	EnableIRQ(inum int)
	DisableIRQ(inum int)
	// SetPriority writes an already left aligned priority register value.
	SetPriority(inum int, value uint8)
	// SetPriorityGrouping programs AIRCR.PRIGROUP where the core has it.
	SetPriorityGrouping(group uint32)
	// ActiveIRQ returns the interrupt number being serviced, negative when
	// not in an external interrupt handler.
	ActiveIRQ() int
}

// DevInfo is the board configuration of a Mux.
type DevInfo struct {
	// Start and End are the first and last governed interrupt numbers.
	Start, End int

	// Map holds one entry per governed interrupt number. Must be at least
	// End-Start+1 long.
	Map []uint8

	// Slots is the handler pool. At most MaxSlots entries are used.
	Slots []ISRInfo

	// PriorityGroup is the AIRCR.PRIGROUP value, 0..7.
	PriorityGroup uint32

	// PriorityBits is the number of implemented priority bits, 1..8.
	PriorityBits uint8
	Controller   Controller
	Locker       ametal.Locker
	Logger       *slog.Logger

	// StrictDisconnect makes Disconnect require the argument to match the
	// connected one. By default any Disconnect of a connected interrupt
	// number succeeds.
	StrictDisconnect bool
}

// Stats counts dispatch activity since Init.
type Stats struct {
	Dispatched uint32

	// Dropped counts interrupts that arrived with no handler connected or
	// outside the governed range.
	Dropped uint32
}

// Mux is an interrupt multiplexer instance.
type Mux struct {
	start, end int
	isrmap     []uint8
	slots      []ISRInfo
	group      uint32
	bits       uint8
	strict     bool
	ctrl       Controller
	lock       ametal.Locker
	log        xlog.Logger
	stats      Stats

	// inited is set once Init succeeds. valid is cleared when the board
	// provided no map or slot storage, in which case the instance silently
	// ignores connections and dispatches.
	inited bool
	valid  bool
}

// Init configures m from info. A nil Controller is an error. Missing Map or
// Slots storage is not: m is then initialized in a degraded mode where
// Connect, Disconnect and dispatch do nothing.
func (m *Mux) Init(info DevInfo) error {
	if m == nil || info.Controller == nil {
		return ametal.ErrInvalid
	}
	if info.PriorityBits == 0 || info.PriorityBits > 8 || info.Start < 0 || info.End < info.Start {
		return ametal.ErrInvalid
	}
	*m = Mux{
		start:  info.Start,
		end:    info.End,
		group:  info.PriorityGroup & 7,
		bits:   info.PriorityBits,
		strict: info.StrictDisconnect,
		ctrl:   info.Controller,
		lock:   ametal.LockerOrDefault(info.Locker),
		log:    xlog.New(info.Logger),
		inited: true,
	}
	if info.Map == nil || info.Slots == nil {
		m.log.Warn("nvic:init-degraded", slog.Bool("map", info.Map != nil), slog.Bool("slots", info.Slots != nil))
		return nil
	}
	if len(info.Map) < m.count() {
		m.inited = false
		return ametal.ErrInvalid
	}
	slots := info.Slots
	if len(slots) > MaxSlots {
		slots = slots[:MaxSlots]
	}
	m.isrmap = info.Map[:m.count()]
	m.slots = slots
	m.valid = true
	m.reset()
	m.ctrl.SetPriorityGrouping(m.group)
	m.log.Debug("nvic:init",
		slog.Int("start", m.start),
		slog.Int("end", m.end),
		slog.Int("slots", len(m.slots)),
		slog.Uint64("group", uint64(m.group)),
	)
	return nil
}

// Deinit disconnects every handler and disables every governed interrupt
// line. m must be initialized again before further use.
func (m *Mux) Deinit() error {
	if m == nil || !m.inited {
		return ametal.ErrInvalid
	}
	if m.valid {
		m.reset()
	}
	for inum := m.start; inum <= m.end; inum++ {
		m.ctrl.DisableIRQ(inum)
	}
	m.inited = false
	m.valid = false
	m.log.Debug("nvic:deinit")
	return nil
}

func (m *Mux) count() int { return m.end - m.start + 1 }

func (m *Mux) reset() {
	s := m.lock.Lock()
	for i := range m.isrmap {
		m.isrmap[i] = NotConnected
	}
	for i := range m.slots {
		m.slots[i] = ISRInfo{}
	}
	m.lock.Unlock(s)
}

func (m *Mux) inRange(inum int) bool { return inum >= m.start && inum <= m.end }

// Connect routes interrupt inum to fn. If inum already has a handler, fn and
// arg replace it in the slot it holds, so connecting inum again never uses
// another slot. ErrNotPermitted is returned when every slot is in use.
func (m *Mux) Connect(inum int, fn Handler, arg any) error {
	if m == nil || !m.inited || fn == nil || !m.inRange(inum) {
		return ametal.ErrInvalid
	}
	if !m.valid {
		return nil
	}
	idx := inum - m.start
	s := m.lock.Lock()
	slot := int(m.isrmap[idx])
	if slot == NotConnected {
		slot = -1
		for i := range m.slots {
			if m.slots[i].Handler == nil {
				slot = i
				break
			}
		}
	}
	if slot < 0 {
		m.lock.Unlock(s)
		m.log.Warn("nvic:connect-no-slot", slog.Int("inum", inum))
		return ametal.ErrNotPermitted
	}
	m.slots[slot] = ISRInfo{Handler: fn, Arg: arg}
	m.isrmap[idx] = uint8(slot)
	m.lock.Unlock(s)
	m.log.Debug("nvic:connect", slog.Int("inum", inum), slog.Int("slot", slot))
	return nil
}

// Disconnect removes the handler of inum and frees its slot. It returns
// ErrNotPermitted if inum has no handler, or, with StrictDisconnect, if arg is
// not the argument connected to inum. Function values cannot be told apart
// reliably, so fn only has to be non-nil.
func (m *Mux) Disconnect(inum int, fn Handler, arg any) error {
	if m == nil || !m.inited || fn == nil || !m.inRange(inum) {
		return ametal.ErrInvalid
	}
	if !m.valid {
		return nil
	}
	idx := inum - m.start
	s := m.lock.Lock()
	cur := m.isrmap[idx]
	if cur == NotConnected || (m.strict && !sameArg(m.slots[cur].Arg, arg)) {
		m.lock.Unlock(s)
		return ametal.ErrNotPermitted
	}
	m.isrmap[idx] = NotConnected
	m.slots[cur] = ISRInfo{}
	m.lock.Unlock(s)
	m.log.Debug("nvic:disconnect", slog.Int("inum", inum), slog.Int("slot", int(cur)))
	return nil
}

// Connected reports whether inum currently has a handler.
func (m *Mux) Connected(inum int) bool {
	if m == nil || !m.valid || !m.inRange(inum) {
		return false
	}
	s := m.lock.Lock()
	connected := m.isrmap[inum-m.start] != NotConnected
	m.lock.Unlock(s)
	return connected
}

// Enable unmasks interrupt line inum. The line need not have a handler;
// interrupts without one are dropped by the dispatcher.
func (m *Mux) Enable(inum int) error {
	if m == nil || !m.inited {
		return ametal.ErrInvalid
	}
	m.ctrl.EnableIRQ(inum)
	return nil
}

// Disable masks interrupt line inum.
func (m *Mux) Disable(inum int) error {
	if m == nil || !m.inited {
		return ametal.ErrInvalid
	}
	m.ctrl.DisableIRQ(inum)
	return nil
}

// SetPriority encodes preempt and sub according to the configured priority
// group and writes the result to the priority register of inum.
func (m *Mux) SetPriority(inum int, preempt, sub uint32) error {
	if m == nil || !m.inited {
		return ametal.ErrInvalid
	}
	prio := EncodePriority(m.group, m.bits, preempt, sub)
	m.ctrl.SetPriority(inum, RegisterValue(prio, m.bits))
	m.log.Debug("nvic:priority", slog.Int("inum", inum), slog.Uint64("encoded", uint64(prio)))
	return nil
}

// Dispatch calls the handler connected to the interrupt being serviced. It is
// meant to run from the vector table entry shared by the governed range.
func (m *Mux) Dispatch() {
	if m == nil || !m.valid {
		return
	}
	m.DispatchIRQ(m.ctrl.ActiveIRQ())
}

// DispatchIRQ calls the handler connected to inum. Interrupts outside the
// governed range or without a handler are dropped silently.
func (m *Mux) DispatchIRQ(inum int) {
	if m == nil || !m.valid {
		return
	}
	s := m.lock.Lock()
	if !m.inRange(inum) || m.isrmap[inum-m.start] == NotConnected {
		m.stats.Dropped++
		m.lock.Unlock(s)
		if m.log.TraceEnabled() {
			m.log.Trace("nvic:drop", slog.Int("inum", inum))
		}
		return
	}
	info := m.slots[m.isrmap[inum-m.start]]
	m.stats.Dispatched++
	m.lock.Unlock(s)
	info.Handler(info.Arg)
}

// Stats returns a snapshot of the dispatch counters.
func (m *Mux) Stats() Stats {
	if m == nil || !m.inited {
		return Stats{}
	}
	s := m.lock.Lock()
	st := m.stats
	m.lock.Unlock(s)
	return st
}

// sameArg reports whether a and b are the same handler argument. Pointer like
// values match by address. Other values match when equal and comparable at
// run time; it never panics.
func sameArg(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Map:
		return va.Pointer() == vb.Pointer()
	}
	return va.Comparable() && vb.Comparable() && va.Equal(vb)
}
