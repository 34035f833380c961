package bloom

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"github.com/rag-nar1/fastfilter/filter"
	"github.com/sirupsen/logrus"
)

// DefaultBitsPerKey is used when no filter.WithBitsPerKey option is given.
const DefaultBitsPerKey = 8

// Filter is a classic bloom filter. Each key sets k bits anywhere in the
// array, derived from one mixed hash by double hashing.
type Filter[K any] struct {
	bits        *bitset.BitSet // exactly arrayLength words
	arrayLength uint32         // in 64-bit words
	k           uint32         // number of probes
	seed        uint64
	count       uint64
	hash        filter.HashCoder[K]
}

var _ filter.Filter[int64] = (*Filter[int64])(nil)

// New returns an empty filter sized for capacity keys.
func New[K any](capacity int, hash filter.HashCoder[K], opts ...filter.Option) (*Filter[K], error) {
	o := filter.NewOptions(DefaultBitsPerKey, opts...)
	if hash == nil {
		return nil, errors.WithStack(filter.ErrNilHashCoder)
	}
	if err := filter.ValidateSizing(capacity, o.BitsPerKey); err != nil {
		return nil, err
	}

	bitCount := uint64(capacity) * uint64(o.BitsPerKey)
	arrayLength := (bitCount + 63) / 64
	if arrayLength > math.MaxUint32 {
		return nil, errors.Wrapf(filter.ErrCapacityTooLarge, "%d words", arrayLength)
	}

	bf := &Filter[K]{
		bits:        bitset.New(uint(arrayLength * 64)),
		arrayLength: uint32(arrayLength),
		k:           bestK(o.BitsPerKey),
		seed:        filter.NewSeed(),
		hash:        hash,
	}
	o.Logger.WithFields(logrus.Fields{
		"filter":   bf.String(),
		"capacity": capacity,
		"words":    bf.arrayLength,
		"k":        bf.k,
	}).Debug("filter allocated")
	return bf, nil
}

// NewFromKeys returns a filter sized for keys with every key added.
func NewFromKeys[K any](keys []K, hash filter.HashCoder[K], opts ...filter.Option) (*Filter[K], error) {
	bf, err := New(len(keys), hash, opts...)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		bf.insert(key)
	}
	return bf, nil
}

// bestK is round(bitsPerKey * ln 2), at least 1.
func bestK(bitsPerKey int) uint32 {
	return uint32(max(1, int(math.Round(float64(bitsPerKey)*math.Ln2))))
}

// Add inserts key. It never fails.
func (bf *Filter[K]) Add(key K) error {
	bf.insert(key)
	return nil
}

// insert and Contains inline filter.DoubleHash.
func (bf *Filter[K]) insert(key K) {
	hash := filter.MixSplit(bf.hash(key), bf.seed)
	a := bits.RotateLeft64(hash, 32)
	for i := uint32(0); i < bf.k; i++ {
		aa := uint32(a)
		bf.bits.Set(uint(filter.FastRange(aa, bf.arrayLength))<<6 | uint(aa&63))
		a += hash
	}
	bf.count++
}

// Contains reports whether key may have been added.
func (bf *Filter[K]) Contains(key K) bool {
	hash := filter.MixSplit(bf.hash(key), bf.seed)
	a := bits.RotateLeft64(hash, 32)
	for i := uint32(0); i < bf.k; i++ {
		aa := uint32(a)
		if !bf.bits.Test(uint(filter.FastRange(aa, bf.arrayLength))<<6 | uint(aa&63)) {
			return false
		}
		a += hash
	}
	return true
}

// Probes returns the bit positions key maps to, as word<<6 | bit.
func (bf *Filter[K]) Probes(key K) []uint32 {
	return filter.DoubleHash(filter.MixSplit(bf.hash(key), bf.seed), bf.arrayLength, bf.k)
}

// MemoryUsage returns the word array size plus the struct size in bytes.
func (bf *Filter[K]) MemoryUsage() uint64 {
	return uint64(bf.arrayLength)*8 + uint64(unsafe.Sizeof(*bf))
}

// K returns the number of probes per key.
func (bf *Filter[K]) K() uint32 {
	return bf.k
}

// Words returns the length of the word array.
func (bf *Filter[K]) Words() uint32 {
	return bf.arrayLength
}

// Count returns the number of Add calls, duplicates included.
func (bf *Filter[K]) Count() uint64 {
	return bf.count
}

// EstimatedFillRatio returns the fraction of bits set.
func (bf *Filter[K]) EstimatedFillRatio() float64 {
	return float64(bf.bits.Count()) / float64(uint64(bf.arrayLength)*64)
}

// EstimatedFalsePositiveRate estimates the false-positive rate from the
// number of keys added so far.
func (bf *Filter[K]) EstimatedFalsePositiveRate() float64 {
	return filter.EstimateFalsePositiveRate(uint64(bf.arrayLength)*64, bf.k, bf.count)
}

func (bf *Filter[K]) String() string {
	return "BloomFilter"
}
