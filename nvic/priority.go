package nvic

import "encoding/binary"

// Core selects the NVIC priority register access path.
type Core uint8

const (
	// CoreM0 and CoreM0Plus (ARMv6-M) only allow word access to the priority
	// registers and have no priority grouping.
	CoreM0 Core = iota
	CoreM0Plus
	// CoreM3 and CoreM4 (ARMv7-M) allow byte access and grouping via AIRCR.PRIGROUP.
	CoreM3
	CoreM4
)

func (c Core) String() string {
	switch c {
	case CoreM0:
		return "cortex-m0"
	case CoreM0Plus:
		return "cortex-m0+"
	case CoreM3:
		return "cortex-m3"
	case CoreM4:
		return "cortex-m4"
	}
	return "cortex-m?"
}

// wordAccess reports whether priority registers must be written a word at a time.
func (c Core) wordAccess() bool { return c == CoreM0 || c == CoreM0Plus }

// hasGrouping reports whether the core implements AIRCR.PRIGROUP.
func (c Core) hasGrouping() bool { return !c.wordAccess() }

const (
	aircrVectKey     = 0x05FA << 16
	aircrVectKeyMask = 0xFFFF << 16
	aircrPrigroupPos = 8
	aircrPrigroupMsk = 7 << aircrPrigroupPos
)

// aircrWithGroup returns the AIRCR value programming priority group group
// while preserving the other writable fields of aircr.
func aircrWithGroup(aircr, group uint32) uint32 {
	aircr &^= aircrVectKeyMask | aircrPrigroupMsk
	return aircr | aircrVectKey | (group&7)<<aircrPrigroupPos
}

// splitBits returns how many of the implemented priority bits go to the
// preemption and the sub-priority fields for priority group group.
func splitBits(group uint32, bits uint8) (preemptBits, subBits uint32) {
	group &= 7
	w := uint32(bits)
	preemptBits = 7 - group
	if preemptBits > w {
		preemptBits = w
	}
	if group+w >= 7 {
		subBits = group + w - 7
	}
	return preemptBits, subBits
}

// EncodePriority packs preempt and sub into a priority value of bits
// implemented bits, preemption in the upper field, for priority group group
// (the AIRCR.PRIGROUP value, 0..7). Values wider than their field are masked.
func EncodePriority(group uint32, bits uint8, preempt, sub uint32) uint32 {
	preemptBits, subBits := splitBits(group, bits)
	return (preempt&(1<<preemptBits-1))<<subBits | sub&(1<<subBits-1)
}

// DecodePriority is the inverse of EncodePriority.
func DecodePriority(priority, group uint32, bits uint8) (preempt, sub uint32) {
	preemptBits, subBits := splitBits(group, bits)
	preempt = priority >> subBits & (1<<preemptBits - 1)
	sub = priority & (1<<subBits - 1)
	return preempt, sub
}

// RegisterValue left aligns an encoded priority in the 8 bit priority field,
// the unimplemented low bits reading as zero.
func RegisterValue(priority uint32, bits uint8) uint8 {
	return uint8(priority << (8 - uint32(bits)))
}

// writePriorityByte stores value in the byte-addressed priority registers of
// an ARMv7-M NVIC.
func writePriorityByte(ip []byte, irq int, value uint8) {
	ip[irq] = value
}

// writePriorityWord read-modify-writes the 32 bit priority register holding
// irq, four interrupts per register, as ARMv6-M requires.
func writePriorityWord(ip []byte, irq int, value uint8) {
	off := irq &^ 3
	shift := uint(irq&3) * 8
	w := binary.LittleEndian.Uint32(ip[off:])
	w = w&^(0xFF<<shift) | uint32(value)<<shift
	binary.LittleEndian.PutUint32(ip[off:], w)
}
