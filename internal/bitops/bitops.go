// Package bitops has small integer helpers shared by the scheduling packages.
package bitops

import "golang.org/x/exp/constraints"

// Alignup rounds val up to the nearest multiple of align. align must be a power of 2.
func Alignup[T constraints.Unsigned](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

// CeilDiv returns val/div rounded towards positive infinity. div must be non-zero.
func CeilDiv[T constraints.Unsigned](val, div T) T {
	return (val + div - 1) / div
}

// Clamp limits v to the closed interval [lo, hi].
func Clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}
