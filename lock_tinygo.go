//go:build tinygo

package ametal

import "runtime/interrupt"

var defaultLocker Locker = irqLocker{}

// irqLocker disables interrupts on the current core. Nested use restores the
// mask that was active at the matching Lock.
type irqLocker struct{}

func (irqLocker) Lock() State {
	return State(interrupt.Disable())
}

func (irqLocker) Unlock(s State) {
	interrupt.Restore(interrupt.State(s))
}
