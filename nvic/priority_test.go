package nvic

import "testing"

func TestEncodePriority(t *testing.T) {
	var tests = []struct {
		group        uint32
		bits         uint8
		preempt, sub uint32
		want         uint32
	}{
		// 3 implemented bits, all preemption.
		{group: 0, bits: 3, preempt: 5, sub: 1, want: 5},
		{group: 4, bits: 3, preempt: 5, sub: 1, want: 5},
		// group 5: 2 preempt bits, 1 sub bit.
		{group: 5, bits: 3, preempt: 2, sub: 1, want: 0b101},
		{group: 5, bits: 3, preempt: 7, sub: 3, want: 0b111}, // masked.
		// group 7: everything is sub-priority.
		{group: 7, bits: 3, preempt: 3, sub: 6, want: 6},
		// 4 bits, group 3: all preempt.
		{group: 3, bits: 4, preempt: 0xA, sub: 1, want: 0xA},
		// 4 bits, group 5: 2 and 2.
		{group: 5, bits: 4, preempt: 3, sub: 2, want: 0b1110},
		// 8 bits, group 0: 7 preempt, 1 sub.
		{group: 0, bits: 8, preempt: 0x7F, sub: 1, want: 0xFF},
		// Group values above 7 only use the low 3 bits.
		{group: 8 | 5, bits: 3, preempt: 2, sub: 1, want: 0b101},
	}
	for _, tt := range tests {
		got := EncodePriority(tt.group, tt.bits, tt.preempt, tt.sub)
		if got != tt.want {
			t.Errorf("EncodePriority(g=%d,w=%d,%d,%d)=%#b, want %#b", tt.group, tt.bits, tt.preempt, tt.sub, got, tt.want)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for group := uint32(0); group < 8; group++ {
		for bits := uint8(1); bits <= 8; bits++ {
			pb, sb := splitBits(group, bits)
			if pb+sb != uint32(bits) {
				t.Fatalf("g=%d w=%d: %d+%d bits != %d", group, bits, pb, sb, bits)
			}
			for prio := uint32(0); prio < 1<<bits; prio++ {
				p, s := DecodePriority(prio, group, bits)
				if got := EncodePriority(group, bits, p, s); got != prio {
					t.Fatalf("g=%d w=%d prio=%d: round trip gave %d", group, bits, prio, got)
				}
			}
		}
	}
}

func TestRegisterValue(t *testing.T) {
	if got := RegisterValue(0b101, 3); got != 0b1010_0000 {
		t.Errorf("got %#b", got)
	}
	if got := RegisterValue(0xAB, 8); got != 0xAB {
		t.Errorf("got %#x", got)
	}
}

func TestPriorityWritePaths(t *testing.T) {
	var bytePath, wordPath [32]byte
	values := []uint8{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70}
	for irq, v := range values {
		writePriorityByte(bytePath[:], irq*3, v)
		writePriorityWord(wordPath[:], irq*3, v)
	}
	if bytePath != wordPath {
		t.Errorf("paths disagree:\nbyte %x\nword %x", bytePath, wordPath)
	}
	// Neighbours of a word write must be untouched.
	writePriorityWord(wordPath[:], 5, 0xEE)
	if wordPath[4] != 0 || wordPath[5] != 0xEE || wordPath[6] != 0x30 || wordPath[7] != 0 {
		t.Errorf("word write clobbered neighbours: %x", wordPath[4:8])
	}
}

func TestAIRCRGroup(t *testing.T) {
	// Reset value with VECTKEYSTAT read back and ENDIANNESS/SYSRESETREQ bits set.
	aircr := uint32(0xFA05_8004)
	got := aircrWithGroup(aircr, 5)
	want := uint32(0x05FA_8504)
	if got != want {
		t.Errorf("got %#08x, want %#08x", got, want)
	}
}
