//go:build tinygo && cortexm

package nvic

import (
	"device/arm"
	"runtime/volatile"
	"unsafe"
)

const (
	nvicIPRBase = 0xE000E400
	scbAIRCR    = 0xE000ED0C
)

// HardwareController drives the NVIC of the running Cortex-M core.
type HardwareController struct {
	Core Core
}

var _ Controller = HardwareController{}

func (c HardwareController) EnableIRQ(inum int) {
	arm.EnableIRQ(uint32(inum))
}

func (c HardwareController) DisableIRQ(inum int) {
	arm.DisableIRQ(uint32(inum))
}

func (c HardwareController) SetPriority(inum int, value uint8) {
	if !c.Core.wordAccess() {
		reg := (*volatile.Register8)(unsafe.Pointer(uintptr(nvicIPRBase + inum)))
		reg.Set(value)
		return
	}
	reg := (*volatile.Register32)(unsafe.Pointer(uintptr(nvicIPRBase + inum&^3)))
	shift := uint32(inum&3) * 8
	reg.ReplaceBits(uint32(value), 0xFF, uint8(shift))
}

func (c HardwareController) SetPriorityGrouping(group uint32) {
	if !c.Core.hasGrouping() {
		return
	}
	reg := (*volatile.Register32)(unsafe.Pointer(uintptr(scbAIRCR)))
	reg.Set(aircrWithGroup(reg.Get(), group))
}

// ActiveIRQ reads IPSR. External interrupt 0 is exception 16.
func (c HardwareController) ActiveIRQ() int {
	ipsr := arm.AsmFull("mrs {}, IPSR", nil)
	return int(ipsr&0x1FF) - 16
}
