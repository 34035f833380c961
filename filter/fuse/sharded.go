package fuse

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rag-nar1/fastfilter/filter"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sharded splits a key set across independent fuse filters that are built
// concurrently. Keys are routed to a shard by their unseeded hash code, so a
// key always lands in the same shard regardless of the shard filters' seeds.
type Sharded[K any, F Fingerprint] struct {
	shards []*Filter[K, F] // nil for shards that received no keys
	hash   filter.HashCoder[K]
}

var _ filter.Filter[int64] = (*Sharded[int64, uint8])(nil)

// NewSharded8 builds a sharded filter with 8-bit fingerprints. The shard
// count comes from filter.WithShards and defaults to GOMAXPROCS.
func NewSharded8[K any](keys []K, hash filter.HashCoder[K], opts ...filter.Option) (*Sharded[K, uint8], error) {
	return buildSharded[K, uint8](keys, hash, opts...)
}

// NewSharded16 builds a sharded filter with 16-bit fingerprints.
func NewSharded16[K any](keys []K, hash filter.HashCoder[K], opts ...filter.Option) (*Sharded[K, uint16], error) {
	return buildSharded[K, uint16](keys, hash, opts...)
}

func buildSharded[K any, F Fingerprint](keys []K, hash filter.HashCoder[K], opts ...filter.Option) (*Sharded[K, F], error) {
	o := filter.NewOptions(0, opts...)
	if hash == nil {
		return nil, errors.WithStack(filter.ErrNilHashCoder)
	}
	if o.Shards < 1 {
		return nil, errors.Wrapf(filter.ErrInvalidShards, "shards %d", o.Shards)
	}
	if len(keys) == 0 {
		return nil, errors.WithStack(filter.ErrEmptyKeys)
	}

	sf := &Sharded[K, F]{
		shards: make([]*Filter[K, F], o.Shards),
		hash:   hash,
	}

	parts := make([][]K, o.Shards)
	for _, key := range keys {
		i := sf.shardIndex(hash(key))
		parts[i] = append(parts[i], key)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, part := range parts {
		if len(part) == 0 {
			continue
		}
		g.Go(func() error {
			shard, err := build[K, F](part, hash, opts...)
			if err != nil {
				return errors.WithMessagef(err, "shard %d", i)
			}
			sf.shards[i] = shard
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.Logger.WithFields(logrus.Fields{
		"keys":   len(keys),
		"shards": o.Shards,
	}).Debug("sharded binary fuse filter built")
	return sf, nil
}

func (sf *Sharded[K, F]) shardIndex(code int32) int {
	return int(filter.FastRange(uint32(filter.Mix(uint64(uint32(code)))), uint32(len(sf.shards))))
}

// Add always fails, as it does for a single fuse filter.
func (sf *Sharded[K, F]) Add(K) error {
	return errors.Wrap(filter.ErrNotSupported, "sharded binary fuse filters cannot add keys after construction")
}

// Contains reports whether key may be in the set the filter was built from.
func (sf *Sharded[K, F]) Contains(key K) bool {
	shard := sf.shards[sf.shardIndex(sf.hash(key))]
	return shard != nil && shard.Contains(key)
}

// MemoryUsage sums the shards and adds the shard table.
func (sf *Sharded[K, F]) MemoryUsage() uint64 {
	total := uint64(unsafe.Sizeof(*sf)) + uint64(len(sf.shards))*uint64(unsafe.Sizeof(uintptr(0)))
	for _, shard := range sf.shards {
		if shard != nil {
			total += shard.MemoryUsage()
		}
	}
	return total
}

// Shards returns the number of shards, empty ones included.
func (sf *Sharded[K, F]) Shards() int {
	return len(sf.shards)
}
