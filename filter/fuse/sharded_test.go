package fuse

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rag-nar1/fastfilter/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardedNoFalseNegatives(t *testing.T) {
	keys := make([]string, 50_000)
	for i := range keys {
		keys[i] = fmt.Sprintf("user:%d", i)
	}

	for _, shards := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("%d shards", shards), func(t *testing.T) {
			sf, err := NewSharded8(keys, filter.String, filter.WithShards(shards), quietLogger())
			require.NoError(t, err)
			assert.Equal(t, shards, sf.Shards())

			for _, key := range keys {
				if !sf.Contains(key) {
					t.Fatalf("false negative: %s", key)
				}
			}
		})
	}
}

func TestShardedRouting(t *testing.T) {
	keys := make([]int64, 10_000)
	for i := range keys {
		keys[i] = int64(i)
	}
	sf, err := NewSharded16(keys, filter.Integer[int64], filter.WithShards(4), quietLogger())
	require.NoError(t, err)

	keysPerShard := 0
	for i, shard := range sf.shards {
		require.NotNil(t, shard, "shard %d", i)
		assert.Greater(t, shard.ArrayLength(), uint32(0))
	}
	for _, key := range keys {
		if sf.shardIndex(filter.Integer(key)) == 0 {
			keysPerShard++
		}
	}
	// Mix spreads sequential codes evenly
	assert.InDelta(t, len(keys)/4, keysPerShard, 500)

	// every key is found in the shard it routes to
	for _, key := range keys {
		shard := sf.shards[sf.shardIndex(filter.Integer(key))]
		require.True(t, shard.Contains(key))
	}
}

func TestShardedEmptyShards(t *testing.T) {
	keys := []int64{7, 11, 13}
	sf, err := NewSharded8(keys, filter.Integer[int64], filter.WithShards(64), quietLogger())
	require.NoError(t, err)

	empty := 0
	for _, shard := range sf.shards {
		if shard == nil {
			empty++
		}
	}
	assert.GreaterOrEqual(t, empty, 61)

	for _, key := range keys {
		assert.True(t, sf.Contains(key))
	}
	for i := int64(100); i < 1000; i++ {
		if sf.shards[sf.shardIndex(filter.Integer(i))] == nil {
			assert.False(t, sf.Contains(i))
		}
	}
}

func TestShardedMemoryUsage(t *testing.T) {
	keys := make([]int64, 20_000)
	for i := range keys {
		keys[i] = int64(i)
	}
	sf, err := NewSharded8(keys, filter.Integer[int64], filter.WithShards(5), quietLogger())
	require.NoError(t, err)

	want := uint64(unsafe.Sizeof(*sf)) + 5*uint64(unsafe.Sizeof(uintptr(0)))
	for _, shard := range sf.shards {
		want += shard.MemoryUsage()
	}
	assert.Equal(t, want, sf.MemoryUsage())
}

func TestShardedErrors(t *testing.T) {
	keys := []int64{1, 2, 3}

	_, err := NewSharded8(keys, filter.Integer[int64], filter.WithShards(0))
	assert.True(t, errors.Is(err, filter.ErrInvalidShards), "got %v", err)

	_, err = NewSharded16(keys, nil)
	assert.True(t, errors.Is(err, filter.ErrNilHashCoder), "got %v", err)

	_, err = NewSharded8([]int64{}, filter.Integer[int64])
	assert.True(t, errors.Is(err, filter.ErrEmptyKeys), "got %v", err)

	sf, err := NewSharded8(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	assert.True(t, errors.Is(sf.Add(4), filter.ErrNotSupported))
}
