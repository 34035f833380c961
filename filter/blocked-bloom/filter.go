package blockedbloom

import (
	"math"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rag-nar1/fastfilter/filter"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBitsPerKey is two bits above the classic filter's default, which
	// brings the false-positive rate back in line with it.
	DefaultBitsPerKey = 10

	// PaddingWords are allocated on top of the computed bucket count.
	PaddingWords = 8

	// WordMask selects a bit position within a 64-bit word.
	WordMask = 63
)

// Filter is a register-blocked bloom filter: every key sets exactly two bits
// inside a single 64-bit word, so Add and Contains touch one cache line.
type Filter[K any] struct {
	words       []uint64
	arrayLength uint32
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

	buckets := uint64(capacity) * uint64(o.BitsPerKey) / 64
	if buckets+PaddingWords > math.MaxUint32 {
		return nil, errors.Wrapf(filter.ErrCapacityTooLarge, "%d words", buckets+PaddingWords)
	}
	arrayLength := uint32(buckets + PaddingWords)

	bf := &Filter[K]{
		words:       make([]uint64, arrayLength),
		arrayLength: arrayLength,
		seed:        filter.NewSeed(),
		hash:        hash,
	}
	o.Logger.WithFields(logrus.Fields{
		"filter":   bf.String(),
		"capacity": capacity,
		"words":    arrayLength,
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

// locate returns the word index and the two-bit mask of key.
func (bf *Filter[K]) locate(key K) (uint32, uint64) {
	hash := filter.MixSplit(bf.hash(key), bf.seed)
	idx := filter.FastRange(uint32(hash), bf.arrayLength)
	m1 := uint64(1) << (hash & WordMask)
	m2 := uint64(1) << ((hash >> 8) & WordMask)
	return idx, m1 | m2
}

// Add inserts key. It never fails.
func (bf *Filter[K]) Add(key K) error {
	bf.insert(key)
	return nil
}

func (bf *Filter[K]) insert(key K) {
	idx, m := bf.locate(key)
	bf.words[idx] |= m
	bf.count++
}

// Contains reports whether key may have been added.
func (bf *Filter[K]) Contains(key K) bool {
	idx, m := bf.locate(key)
	return bf.words[idx]&m == m
}

// MemoryUsage returns the word array size plus the struct size in bytes.
func (bf *Filter[K]) MemoryUsage() uint64 {
	return uint64(bf.arrayLength)*8 + uint64(unsafe.Sizeof(*bf))
}

// Words returns the length of the word array, padding included.
func (bf *Filter[K]) Words() uint32 {
	return bf.arrayLength
}

// Count returns the number of Add calls, duplicates included.
func (bf *Filter[K]) Count() uint64 {
	return bf.count
}

// EstimatedFillRatio returns the fraction of bits set.
func (bf *Filter[K]) EstimatedFillRatio() float64 {
	return filter.FillRatio(bf.words)
}

func (bf *Filter[K]) String() string {
	return "BlockedBloomFilter"
}
