package filter

import (
	"github.com/cespare/xxhash"
	"github.com/dgryski/go-metro"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
	"github.com/zhenjl/cityhash"
	"golang.org/x/exp/constraints"
)

// HashCoder returns the 32-bit hash code of a key. Filters combine it with
// their own seed through MixSplit, so a coder only has to be deterministic.
type HashCoder[K any] func(key K) int32

// fold xors the two halves of a 64-bit hash together.
func fold(h uint64) int32 {
	return int32(uint32(h) ^ uint32(h>>32))
}

// Integer hashes any integer key. For 64-bit keys this is lo ^ hi of the
// sign-extended value; keys that fit in 32 bits without a sign keep their value.
func Integer[K constraints.Integer](key K) int32 {
	return fold(uint64(key))
}

// String hashes a string key with xxh3 without copying it.
func String(key string) int32 {
	return fold(xxh3.HashString(key))
}

// Bytes hashes a byte-slice key with metro hash.
func Bytes(key []byte) int32 {
	return fold(metro.Hash64(key, 0))
}

// XXHash hashes a byte-slice key with xxhash64.
func XXHash(key []byte) int32 {
	return fold(xxhash.Sum64(key))
}

// Murmur3 hashes a byte-slice key with 32-bit murmur3.
func Murmur3(key []byte) int32 {
	return int32(murmur3.Sum32(key))
}

// City hashes a byte-slice key with 32-bit CityHash.
func City(key []byte) int32 {
	return int32(cityhash.CityHash32(key, uint32(len(key))))
}
