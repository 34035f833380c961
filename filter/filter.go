// Package filter holds what the approximate membership filters in its
// subpackages share: the hash primitives, key hash coders, construction
// options and errors.
//
// All filters answer "is key possibly in the set?" with no false negatives
// and a bounded false-positive rate. None of them is safe for concurrent
// mutation; once mutation is finished, Contains may be called from any number
// of goroutines.
package filter

import "math"

// Filter is the capability surface common to every filter variant.
type Filter[K any] interface {
	// Add inserts key. Filters built once from a fixed key set return
	// ErrNotSupported.
	Add(key K) error

	// Contains reports whether key may be in the set. A false result is
	// definite.
	Contains(key K) bool

	// MemoryUsage returns the size in bytes of the filter's array plus the
	// filter struct itself.
	MemoryUsage() uint64
}

// EstimateFalsePositiveRate returns (1 - e^(-kn/m))^k for a bit array of m
// bits holding n keys with k probes each.
func EstimateFalsePositiveRate(m uint64, k uint32, n uint64) float64 {
	if m == 0 || n == 0 {
		return 0
	}
	kf := float64(k)
	return math.Pow(1-math.Exp(-kf*float64(n)/float64(m)), kf)
}
