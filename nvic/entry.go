package nvic

import "sync/atomic"

var active atomic.Pointer[Mux]

// Use makes m the instance served by ExcEintHandler. Passing nil detaches it.
func Use(m *Mux) {
	active.Store(m)
}

// ExcEintHandler is the single entry point to install in the vector table for
// every governed interrupt number. It does nothing until Use is called.
func ExcEintHandler() {
	if m := active.Load(); m != nil {
		m.Dispatch()
	}
}
