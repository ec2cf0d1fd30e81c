package jobq

import "math/bits"

// ffs returns one plus the index of the least significant set bit of x, or 0
// if x is zero. Queue code only calls it with x != 0.
func ffs(x uint32) int {
	if x == 0 {
		return 0
	}
	return bits.TrailingZeros32(x) + 1
}
