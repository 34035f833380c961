package filter

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= n, and 1 for 0.
func NextPowerOfTwo(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

// FillRatio returns the fraction of set bits in words.
func FillRatio(words []uint64) float64 {
	if len(words) == 0 {
		return 0
	}
	setBits := 0
	for _, word := range words {
		setBits += bits.OnesCount64(word)
	}
	return float64(setBits) / float64(len(words)*64)
}
