package bitops

import "testing"

func TestAlignup(t *testing.T) {
	var tests = []struct {
		val, align, want uint
	}{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
		{1024, 32, 1024},
	}
	for _, tt := range tests {
		if got := Alignup(tt.val, tt.align); got != tt.want {
			t.Errorf("Alignup(%d,%d)=%d, want %d", tt.val, tt.align, got, tt.want)
		}
	}
}

func TestCeilDiv(t *testing.T) {
	if got := CeilDiv[uint64](1000*50, 1000); got != 50 {
		t.Errorf("got %d", got)
	}
	if got := CeilDiv[uint64](32768*1, 1000); got != 33 {
		t.Errorf("got %d", got)
	}
	if got := CeilDiv[uint32](0, 7); got != 0 {
		t.Errorf("got %d", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Error("clamp mismatch")
	}
}
