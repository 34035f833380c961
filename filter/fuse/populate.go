package fuse

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/rag-nar1/fastfilter/filter"
	"github.com/sirupsen/logrus"
)

// maxAttempts bounds the reseed-and-retry loop. Each attempt succeeds with
// probability above one half.
const maxAttempts = 100

// pruneAfter is the number of failed attempts after which the hash codes are
// deduplicated up front. Identical codes produce identical hashes, and the
// in-place duplicate check misses a pair whenever none of the pair's slots
// is otherwise empty at the time the second copy is counted.
const pruneAfter = 10

// hashAt returns the slot of a key hash for role 0, 1 or 2. Role r lands in
// segment r past the key's first segment, offset by an 18-bit window taken
// from the low 36 bits of the hash.
func (l layout) hashAt(role int, hash uint64) uint32 {
	h := filter.MulHi(hash, uint64(l.segmentCountLength))
	h += uint64(role) * uint64(l.segmentLength)
	hh := hash & (1<<36 - 1)
	h ^= (hh >> (36 - 18*role)) & uint64(l.segmentLengthMask)
	return uint32(h)
}

func mod3(x uint8) uint8 {
	if x > 2 {
		return x - 3
	}
	return x
}

// scratch is the transient construction state. Slot counters pack the number
// of keys touching the slot in the upper six bits and the XOR of their roles
// in the low two bits, so a slot with one key left also names that key's role.
type scratch struct {
	reverseOrder []uint64 // key hashes in bucket order, then the peel stack; reverseOrder[size] is a sentinel
	reverseH     []uint8  // resolved role of each peeled key
	alone        []uint32 // singleton slot queue
	t2Count      []uint8
	t2Hash       []uint64 // XOR of the hashes of the keys touching the slot
	startPos     []uint32
}

func newScratch(size, arrayLength, block uint32) *scratch {
	s := &scratch{
		reverseOrder: make([]uint64, size+1),
		reverseH:     make([]uint8, size),
		alone:        make([]uint32, arrayLength),
		t2Count:      make([]uint8, arrayLength),
		t2Hash:       make([]uint64, arrayLength),
		startPos:     make([]uint32, block),
	}
	s.reverseOrder[size] = 1
	return s
}

// reset clears everything an attempt wrote, leaving the sentinel in place.
func (s *scratch) reset() {
	clear(s.reverseOrder[:len(s.reverseOrder)-1])
	clear(s.t2Count)
	clear(s.t2Hash)
}

// distribute orders the key hashes by their top blockBits bits. Each bucket
// owns a contiguous run of reverseOrder; a full bucket spills into the next
// one, wrapping around.
func (s *scratch) distribute(codes []int32, seed uint64, blockBits int) {
	size := uint64(len(codes))
	block := uint64(1) << blockBits
	maskBlock := block - 1
	for i := uint64(0); i < block; i++ {
		s.startPos[i] = uint32((i * size) >> blockBits)
	}
	for _, code := range codes {
		hash := filter.MixSplit(code, seed)
		segmentIndex := hash >> (64 - blockBits)
		for s.reverseOrder[s.startPos[segmentIndex]] != 0 {
			segmentIndex = (segmentIndex + 1) & maskBlock
		}
		s.reverseOrder[s.startPos[segmentIndex]] = hash
		s.startPos[segmentIndex]++
	}
}

// countEdges adds every ordered key hash to its three slots. A key whose
// three slots cancel back to a pair of identical hashes is counted as a
// duplicate and removed again. ok is false when a slot counter overflowed.
func (s *scratch) countEdges(l layout, size uint32) (duplicates uint32, ok bool) {
	ok = true
	for i := uint32(0); i < size; i++ {
		hash := s.reverseOrder[i]
		h0 := l.hashAt(0, hash)
		h1 := l.hashAt(1, hash)
		h2 := l.hashAt(2, hash)

		s.t2Count[h0] += 4
		s.t2Hash[h0] ^= hash
		s.t2Count[h1] += 4
		s.t2Count[h1] ^= 1
		s.t2Hash[h1] ^= hash
		s.t2Count[h2] += 4
		s.t2Count[h2] ^= 2
		s.t2Hash[h2] ^= hash

		if s.t2Hash[h0]&s.t2Hash[h1]&s.t2Hash[h2] == 0 {
			if (s.t2Hash[h0] == 0 && s.t2Count[h0] == 8) ||
				(s.t2Hash[h1] == 0 && s.t2Count[h1] == 8) ||
				(s.t2Hash[h2] == 0 && s.t2Count[h2] == 8) {
				duplicates++
				s.t2Count[h0] -= 4
				s.t2Hash[h0] ^= hash
				s.t2Count[h1] -= 4
				s.t2Count[h1] ^= 1
				s.t2Hash[h1] ^= hash
				s.t2Count[h2] -= 4
				s.t2Count[h2] ^= 2
				s.t2Hash[h2] ^= hash
			}
		}

		if s.t2Count[h0] < 4 || s.t2Count[h1] < 4 || s.t2Count[h2] < 4 {
			ok = false
		}
	}
	return duplicates, ok
}

// peel repeatedly removes a key that is alone in one of its slots and pushes
// its hash and role onto the stack at the front of reverseOrder. It returns
// the stack size.
func (s *scratch) peel(l layout) uint32 {
	var h012 [5]uint32

	qsize := uint32(0)
	for i := uint32(0); i < l.arrayLength; i++ {
		s.alone[qsize] = i
		if s.t2Count[i]>>2 == 1 {
			qsize++
		}
	}

	stackSize := uint32(0)
	for qsize > 0 {
		qsize--
		index := s.alone[qsize]
		if s.t2Count[index]>>2 != 1 {
			continue
		}
		hash := s.t2Hash[index]
		h012[1] = l.hashAt(1, hash)
		h012[2] = l.hashAt(2, hash)
		h012[3] = l.hashAt(0, hash)
		h012[4] = h012[1]

		found := s.t2Count[index] & 3
		s.reverseH[stackSize] = found
		s.reverseOrder[stackSize] = hash
		stackSize++

		other1 := h012[found+1]
		s.alone[qsize] = other1
		if s.t2Count[other1]>>2 == 2 {
			qsize++
		}
		s.t2Count[other1] -= 4
		s.t2Count[other1] ^= mod3(found + 1)
		s.t2Hash[other1] ^= hash

		other2 := h012[found+2]
		s.alone[qsize] = other2
		if s.t2Count[other2]>>2 == 2 {
			qsize++
		}
		s.t2Count[other2] -= 4
		s.t2Count[other2] ^= mod3(found + 2)
		s.t2Hash[other2] ^= hash
	}
	return stackSize
}

// populate searches for a peeling order of the key hashes and fills the
// fingerprint array from it.
func (f *Filter[K, F]) populate(codes []int32, logger logrus.FieldLogger) error {
	size := uint32(len(codes))
	blockBits := f.blockBits()
	s := newScratch(size, f.arrayLength, uint32(1)<<blockBits)

	log := logger.WithFields(logrus.Fields{
		"filter":        f.String(),
		"keys":          size,
		"segmentLength": f.segmentLength,
		"segmentCount":  f.segmentCount,
		"arrayLength":   f.arrayLength,
	})

	var pruned uint32
	f.seed = filter.NewSeed()
	var stackSize uint32
	for attempt := 1; ; attempt++ {
		if attempt > maxAttempts {
			log.WithField("attempts", maxAttempts).Error("binary fuse construction exhausted its attempts")
			return errors.Wrapf(filter.ErrConstructionFailed, "no peeling order for %d keys after %d attempts", size, maxAttempts)
		}
		if attempt == pruneAfter+1 {
			codes = uniqueCodes(codes)
			pruned = size - uint32(len(codes))
			if pruned > 0 {
				s = newScratch(uint32(len(codes)), f.arrayLength, uint32(1)<<blockBits)
				log.WithField("pruned", pruned).Debug("binary fuse construction dropped duplicate hash codes")
			}
		}
		f.attempts = attempt

		remaining := uint32(len(codes))
		s.distribute(codes, f.seed, blockBits)
		duplicates, ok := s.countEdges(f.layout, remaining)
		if ok {
			stackSize = s.peel(f.layout)
			if stackSize+duplicates == remaining {
				f.duplicates = duplicates + pruned
				break
			}
		}

		log.WithFields(logrus.Fields{
			"attempt":    attempt,
			"counted":    ok,
			"peeled":     stackSize,
			"duplicates": duplicates,
		}).Debug("binary fuse attempt failed, reseeding")
		s.reset()
		f.seed = filter.NewSeed()
		stackSize = 0
	}

	f.assign(s, stackSize)
	log.WithFields(logrus.Fields{
		"attempts":   f.attempts,
		"duplicates": f.duplicates,
	}).Debug("binary fuse filter built")
	return nil
}

// uniqueCodes returns the distinct codes, sorted.
func uniqueCodes(codes []int32) []int32 {
	unique := slices.Clone(codes)
	slices.Sort(unique)
	return slices.Compact(unique)
}

// assign walks the peel stack from the top. Both other slots of each key
// are final by the time the key's own slot is written.
func (f *Filter[K, F]) assign(s *scratch, stackSize uint32) {
	var h012 [5]uint32
	for i := int(stackSize) - 1; i >= 0; i-- {
		hash := s.reverseOrder[i]
		xor2 := fingerprint[F](hash)
		found := s.reverseH[i]
		h012[0] = f.hashAt(0, hash)
		h012[1] = f.hashAt(1, hash)
		h012[2] = f.hashAt(2, hash)
		h012[3] = h012[0]
		h012[4] = h012[1]
		f.fingerprints[h012[found]] = xor2 ^ f.fingerprints[h012[found+1]] ^ f.fingerprints[h012[found+2]]
	}
}
