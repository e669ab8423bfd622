package filter

import (
	"encoding/binary"
	"math"

	"github.com/caramel-csf/caramel/internal/bitarray"
	"github.com/caramel-csf/caramel/internal/hasher"
)

// BloomFilter is a double-hashed Bloom filter over the 128-bit keyed
// oracle's two lanes, generalizing the teacher's CRC32 double-hashing
// scheme (internal/common/bloom.go) to internal/hasher's 128-bit output
// and internal/bitarray's packed storage in place of a raw []byte.
type BloomFilter struct {
	bits *bitarray.BitArray
	m    uint64
	k    int
}

// NewBloomFilter sizes a filter for n expected elements at the target
// false-positive rate, using the standard optimal-parameter formulas
// (m = -n*ln(p)/ln(2)^2, k = (m/n)*ln(2)) the teacher's comment
// documents but approximates; here they're computed exactly since
// math.Log is stdlib, not an ecosystem concern the repo's dependency
// stack otherwise covers.
func NewBloomFilter(n int, fpRate float64) *BloomFilter {
	if n < 1 {
		n = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}

	m := uint64(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	return &BloomFilter{bits: bitarray.New(m), m: m, k: k}
}

// eachPosition calls fn with each of the k candidate bit positions for
// h, stopping early if fn returns false.
func (bf *BloomFilter) eachPosition(h hasher.Hash128, fn func(pos uint64) bool) {
	h1, h2 := h.Hi, h.Lo
	for i := 0; i < bf.k; i++ {
		pos := (h1 + uint64(i)*h2) % bf.m
		if !fn(pos) {
			return
		}
	}
}

// Add inserts a key's precomputed hash into the filter.
func (bf *BloomFilter) Add(h hasher.Hash128) {
	bf.eachPosition(h, func(pos uint64) bool {
		bf.bits.Set(pos, 1)
		return true
	})
}

// MightContainHash reports whether h may be a member (false means
// definitely not).
func (bf *BloomFilter) MightContainHash(h hasher.Hash128) bool {
	found := true
	bf.eachPosition(h, func(pos uint64) bool {
		if bf.bits.Get(pos) == 0 {
			found = false
			return false
		}
		return true
	})
	return found
}

// MightContain hashes key under seed 0 and checks membership. Callers
// that already have a key's seed-0 Hash128 can call MightContainHash
// directly instead.
func (bf *BloomFilter) MightContain(key []byte) bool {
	return bf.MightContainHash(hasher.New(0).Hash128(key))
}

func (bf *BloomFilter) Kind() Kind { return KindBloom }

// Marshal serializes the filter: an 8-byte bit count, a 1-byte hash
// count, then the packed bit words.
func (bf *BloomFilter) Marshal() []byte {
	words := bf.bits.Words()
	out := make([]byte, 9+8*len(words))
	binary.BigEndian.PutUint64(out[0:8], bf.m)
	out[8] = byte(bf.k)
	for i, w := range words {
		binary.BigEndian.PutUint64(out[9+8*i:], w)
	}
	return out
}

// UnmarshalBloomFilter parses bytes produced by Marshal.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 9 {
		return nil, errShortBuffer
	}
	m := binary.BigEndian.Uint64(data[0:8])
	k := int(data[8])
	rest := data[9:]
	if len(rest)%8 != 0 {
		return nil, errShortBuffer
	}
	words := make([]uint64, len(rest)/8)
	for i := range words {
		words[i] = binary.BigEndian.Uint64(rest[8*i:])
	}
	return &BloomFilter{bits: bitarray.FromWords(words, m), m: m, k: k}, nil
}
