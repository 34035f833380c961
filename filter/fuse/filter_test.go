package fuse_test

import (
	"fmt"
	"io"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rag-nar1/fastfilter/filter"
	"github.com/rag-nar1/fastfilter/filter/fuse"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() filter.Option {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return filter.WithLogger(logger)
}

func sequentialKeys(n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i)
	}
	return keys
}

func TestSmallKeySet(t *testing.T) {
	keys := []int64{1, 42, 30, 481, 58}

	f8, err := fuse.New8(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	for _, key := range keys {
		assert.True(t, f8.Contains(key), "key %d", key)
	}

	f16, err := fuse.New16(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	for _, key := range keys {
		assert.True(t, f16.Contains(key), "key %d", key)
	}

	assert.Equal(t, uint32(8), f8.SegmentLength())
	assert.Equal(t, uint32(1), f8.SegmentCount())
	assert.Equal(t, uint32(24), f8.ArrayLength())
	assert.Equal(t, uint32(0), f8.Duplicates())
	assert.GreaterOrEqual(t, f8.Attempts(), 1)
}

func TestSingleKey(t *testing.T) {
	f8, err := fuse.New8([]string{"only"}, filter.String, quietLogger())
	require.NoError(t, err)
	assert.True(t, f8.Contains("only"))
	assert.Equal(t, uint32(12), f8.ArrayLength())

	f16, err := fuse.New16([]string{"only"}, filter.String, quietLogger())
	require.NoError(t, err)
	assert.True(t, f16.Contains("only"))
}

func TestNoFalseNegatives(t *testing.T) {
	sizes := []int{1, 2, 3, 10, 100, 1000, 10_000, 100_000}
	if !testing.Short() {
		sizes = append(sizes, 1_000_000)
	}

	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d keys", n), func(t *testing.T) {
			keys := sequentialKeys(n)

			f8, err := fuse.New8(keys, filter.Integer[int64], quietLogger())
			require.NoError(t, err)
			f16, err := fuse.New16(keys, filter.Integer[int64], quietLogger())
			require.NoError(t, err)

			for _, key := range keys {
				if !f8.Contains(key) {
					t.Fatalf("8-bit false negative: %d", key)
				}
				if !f16.Contains(key) {
					t.Fatalf("16-bit false negative: %d", key)
				}
			}
		})
	}
}

func TestNoFalseNegativesBytes(t *testing.T) {
	coders := map[string]filter.HashCoder[[]byte]{
		"metro":   filter.Bytes,
		"xxhash":  filter.XXHash,
		"murmur3": filter.Murmur3,
		"city":    filter.City,
	}

	keys := make([][]byte, 20_000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%06d", i))
	}

	for name, coder := range coders {
		t.Run(name, func(t *testing.T) {
			f, err := fuse.New8(keys, coder, quietLogger())
			require.NoError(t, err)
			for _, key := range keys {
				if !f.Contains(key) {
					t.Fatalf("false negative: %s", key)
				}
			}
		})
	}
}

func TestFalsePositiveRate(t *testing.T) {
	n := 100_000
	trials := 1_000_000
	if testing.Short() {
		trials = 100_000
	}
	keys := sequentialKeys(n)

	f8, err := fuse.New8(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	f16, err := fuse.New16(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)

	fp8, fp16 := 0, 0
	for i := range trials {
		key := int64(n + i)
		if f8.Contains(key) {
			fp8++
		}
		if f16.Contains(key) {
			fp16++
		}
	}

	rate8 := float64(fp8) / float64(trials)
	rate16 := float64(fp16) / float64(trials)
	t.Logf("False positive rate: 8-bit %f, 16-bit %f", rate8, rate16)

	// 1/256 and 1/65536
	assert.Greater(t, rate8, 0.002)
	assert.Less(t, rate8, 0.006)
	assert.Less(t, rate16, 0.0001)
}

func TestMemoryUsage(t *testing.T) {
	keys := sequentialKeys(10_000)

	f8, err := fuse.New8(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(12_800)+uint64(unsafe.Sizeof(fuse.Filter[int64, uint8]{})), f8.MemoryUsage())

	f16, err := fuse.New16(keys, filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(2*12_800)+uint64(unsafe.Sizeof(fuse.Filter[int64, uint16]{})), f16.MemoryUsage())

	bitsPerKey := float64(f8.MemoryUsage()*8) / float64(len(keys))
	assert.Less(t, bitsPerKey, 11.0)
}

func TestDuplicateKeys(t *testing.T) {
	t.Run("every key twice", func(t *testing.T) {
		keys := append(sequentialKeys(1000), sequentialKeys(1000)...)
		f, err := fuse.New8(keys, filter.Integer[int64], quietLogger())
		require.NoError(t, err)

		assert.Equal(t, uint32(1000), f.Duplicates())
		for _, key := range keys {
			require.True(t, f.Contains(key))
		}
	})

	t.Run("a few repeats", func(t *testing.T) {
		keys := sequentialKeys(10_000)
		for i := range 100 {
			keys = append(keys, int64(i*97))
		}
		f, err := fuse.New16(keys, filter.Integer[int64], quietLogger())
		require.NoError(t, err)

		assert.Equal(t, uint32(100), f.Duplicates())
		for _, key := range keys {
			require.True(t, f.Contains(key))
		}
	})
}

func TestBuildErrors(t *testing.T) {
	_, err := fuse.New8([]int64{}, filter.Integer[int64])
	assert.True(t, errors.Is(err, filter.ErrEmptyKeys), "got %v", err)

	_, err = fuse.New16[string](nil, filter.String)
	assert.True(t, errors.Is(err, filter.ErrEmptyKeys), "got %v", err)

	_, err = fuse.New8([]string{"a"}, nil)
	assert.True(t, errors.Is(err, filter.ErrNilHashCoder), "got %v", err)
}

func TestAddNotSupported(t *testing.T) {
	f, err := fuse.New8(sequentialKeys(10), filter.Integer[int64], quietLogger())
	require.NoError(t, err)

	err = f.Add(11)
	assert.True(t, errors.Is(err, filter.ErrNotSupported), "got %v", err)
	for _, key := range sequentialKeys(10) {
		assert.True(t, f.Contains(key))
	}
}

func TestString(t *testing.T) {
	f8, err := fuse.New8(sequentialKeys(10), filter.Integer[int64], quietLogger())
	require.NoError(t, err)
	f16, err := fuse.New16(sequentialKeys(10), filter.Integer[int64], quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "BinaryFuse8Filter", f8.String())
	assert.Equal(t, "BinaryFuse16Filter", f16.String())
}
