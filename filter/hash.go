package filter

import (
	"math/bits"
	"math/rand/v2"
)

// Mix is the murmur64 finalizer. Every bit of the input affects every bit of
// the output.
func Mix(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// MixSplit combines a 32-bit key hash code with a filter seed.
// The code is sign-extended before the addition.
func MixSplit(code int32, seed uint64) uint64 {
	return Mix(uint64(int64(code)) + seed)
}

// FastRange maps word into [0, bound) with a multiply-high instead of a
// modulo. The result is slightly biased.
// http://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction/
func FastRange(word, bound uint32) uint32 {
	return uint32((uint64(word) * uint64(bound)) >> 32)
}

// MulHi returns the upper 64 bits of a*b.
func MulHi(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	return hi
}

// NewSeed draws a fresh 64-bit seed from two independent 32-bit draws.
func NewSeed() uint64 {
	seed := uint64(rand.Uint32())
	seed <<= 32
	seed |= uint64(rand.Uint32())
	return seed
}

// DoubleHash returns the k bit positions probed by the classic Bloom filter
// for a mixed key hash, as word<<6 | bit. The rotated hash is advanced by the
// hash itself between probes. bloom.Filter inlines the same sequence in
// insert and Contains; keep the three in step.
func DoubleHash(hash uint64, arrayLength, k uint32) []uint32 {
	hashedIdx := make([]uint32, k)
	a := bits.RotateLeft64(hash, 32)
	for i := range hashedIdx {
		aa := uint32(a)
		hashedIdx[i] = FastRange(aa, arrayLength)<<6 | aa&63
		a += hash
	}
	return hashedIdx
}
