package nvic

// NumIRQ is the number of external interrupts an ARMv7-M NVIC can implement.
const NumIRQ = 496

// SimController emulates an NVIC on the host. It keeps the enable and
// priority registers in memory using the access path of Core and runs
// Handler as the vector of every raised interrupt, tracking nesting so
// ActiveIRQ reports the innermost one. It is not safe for concurrent use.
type SimController struct {
	Core  Core
	ISER  [16]uint32
	IP    [NumIRQ]uint8
	AIRCR uint32

	// Handler is the vector shared by every interrupt, usually Mux.Dispatch
	// or ExcEintHandler.
	Handler func()

	// Raised counts interrupts delivered to Handler, Masked those raised on
	// a disabled line.
	Raised, Masked uint32
	active         []int
}

var _ Controller = (*SimController)(nil)

func validIRQ(inum int) bool { return inum >= 0 && inum < NumIRQ }

func (c *SimController) EnableIRQ(inum int) {
	if validIRQ(inum) {
		c.ISER[inum>>5] |= 1 << (inum & 31)
	}
}

func (c *SimController) DisableIRQ(inum int) {
	if validIRQ(inum) {
		c.ISER[inum>>5] &^= 1 << (inum & 31)
	}
}

// Enabled reports whether line inum is unmasked.
func (c *SimController) Enabled(inum int) bool {
	return validIRQ(inum) && c.ISER[inum>>5]&(1<<(inum&31)) != 0
}

func (c *SimController) SetPriority(inum int, value uint8) {
	if !validIRQ(inum) {
		return
	}
	if c.Core.wordAccess() {
		writePriorityWord(c.IP[:], inum, value)
	} else {
		writePriorityByte(c.IP[:], inum, value)
	}
}

// Priority returns the priority register value of inum.
func (c *SimController) Priority(inum int) uint8 {
	if !validIRQ(inum) {
		return 0
	}
	return c.IP[inum]
}

func (c *SimController) SetPriorityGrouping(group uint32) {
	if c.Core.hasGrouping() {
		c.AIRCR = aircrWithGroup(c.AIRCR, group)
	}
}

// PriorityGrouping returns the programmed AIRCR.PRIGROUP field.
func (c *SimController) PriorityGrouping() uint32 {
	return (c.AIRCR & aircrPrigroupMsk) >> aircrPrigroupPos
}

func (c *SimController) ActiveIRQ() int {
	if len(c.active) == 0 {
		return -1
	}
	return c.active[len(c.active)-1]
}

// Raise delivers interrupt inum if its line is enabled and reports whether
// Handler ran. Raising from within Handler models a nested interrupt.
func (c *SimController) Raise(inum int) bool {
	if !c.Enabled(inum) {
		c.Masked++
		return false
	}
	c.Raised++
	c.active = append(c.active, inum)
	if c.Handler != nil {
		c.Handler()
	}
	c.active = c.active[:len(c.active)-1]
	return true
}
