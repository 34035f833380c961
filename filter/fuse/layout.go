package fuse

import (
	"math"
	"math/bits"

	"github.com/rag-nar1/fastfilter/filter"
)

const maxSegmentLength = 1 << 18

// layout is the segmented array geometry derived from the key count.
type layout struct {
	segmentLength      uint32
	segmentLengthMask  uint32
	segmentCount       uint32
	segmentCountLength uint32
	arrayLength        uint32
}

// newLayout sizes a filter for size keys. The arithmetic is uint32 and may
// wrap for tiny key sets; the final segment count is floored at one.
func newLayout(size uint32) layout {
	var l layout
	l.segmentLength = 1 << int(math.Floor(math.Log(float64(size))/math.Log(3.33)+2.25))
	if l.segmentLength > maxSegmentLength {
		l.segmentLength = maxSegmentLength
	}
	l.segmentLengthMask = l.segmentLength - 1

	var capacity uint32
	if size > 1 {
		sizeFactor := max(1.125, 0.875+0.25*math.Log(1000000)/math.Log(float64(size)))
		capacity = uint32(math.Round(float64(size) * sizeFactor))
	}
	initSegmentCount := (capacity+l.segmentLength-1)/l.segmentLength - 2

	l.arrayLength = (initSegmentCount + 2) * l.segmentLength
	l.segmentCount = (l.arrayLength + l.segmentLength - 1) / l.segmentLength
	if l.segmentCount <= 2 {
		l.segmentCount = 1
	} else {
		l.segmentCount -= 2
	}

	l.arrayLength = (l.segmentCount + 2) * l.segmentLength
	l.segmentCountLength = l.segmentCount * l.segmentLength
	return l
}

// blockBits is the smallest b >= 1 with 1<<b >= segmentCount.
func (l layout) blockBits() int {
	return max(1, bits.TrailingZeros32(filter.NextPowerOfTwo(l.segmentCount)))
}
