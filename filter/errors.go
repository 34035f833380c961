package filter

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// maxBits is the largest bit array addressable with 32-bit word indices.
const maxBits = math.MaxUint32 * 64

var (
	// ErrInvalidCapacity is returned when a filter is sized for zero or fewer keys.
	ErrInvalidCapacity = errors.New("filter: capacity must be positive")

	// ErrInvalidBitsPerKey is returned when bits per key is zero or negative.
	ErrInvalidBitsPerKey = errors.New("filter: bits per key must be positive")

	// ErrCapacityTooLarge is returned when the word array would not be
	// addressable with a 32-bit index.
	ErrCapacityTooLarge = errors.New("filter: capacity too large")

	// ErrEmptyKeys is returned when a fuse filter is built from no keys.
	ErrEmptyKeys = errors.New("filter: key set is empty")

	// ErrNilHashCoder is returned when no hash coder is supplied.
	ErrNilHashCoder = errors.New("filter: hash coder is nil")

	// ErrNotSupported is returned by Add on filters that are immutable after
	// construction.
	ErrNotSupported = errors.New("filter: operation not supported")

	// ErrConstructionFailed is returned when every construction attempt of a
	// fuse filter failed to peel. With distinct keys this does not happen in
	// practice.
	ErrConstructionFailed = errors.New("filter: construction failed")

	// ErrInvalidShards is returned when a sharded filter is asked for fewer
	// than one shard.
	ErrInvalidShards = errors.New("filter: shard count must be positive")
)

// ValidateSizing checks the preconditions shared by the bloom variants. On
// success capacity*bitsPerKey fits in a 32-bit indexed word array.
func ValidateSizing(capacity, bitsPerKey int) error {
	if capacity <= 0 {
		return errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	if bitsPerKey <= 0 {
		return errors.Wrapf(ErrInvalidBitsPerKey, "bits per key %d", bitsPerKey)
	}
	hi, lo := bits.Mul64(uint64(capacity), uint64(bitsPerKey))
	if hi != 0 || lo > maxBits {
		return errors.Wrapf(ErrCapacityTooLarge, "capacity %d at %d bits per key", capacity, bitsPerKey)
	}
	return nil
}
