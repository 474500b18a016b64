// Package bloom adapts bits-and-blooms filters to the blocklist repository.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// defaultFPRate replaces rates outside (0, 1).
const defaultFPRate = 0.01

// size returns the bit count m and hash count k for n keys at false-positive
// rate p. n is at least 1 so an empty snapshot still yields a usable filter.
func size(n uint64, p float64) (m, k uint) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = defaultFPRate
	}
	m, k = bitsbloom.EstimateParameters(uint(n), p)
	if m == 0 {
		m = 1
	}
	if k == 0 {
		k = 1
	}
	return m, k
}
