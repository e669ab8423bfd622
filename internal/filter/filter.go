// Package filter implements the AMQ prefilter layer spec.md §4.7
// describes: an approximate membership filter consulted before a query
// touches the CSF's solved bits, so that keys outside the domain (or,
// for the majority/minority-value variant, keys whose value is the
// majority value) can usually be rejected with a single probe.
//
// BloomFilter generalizes the teacher's internal/common/bloom.go
// double-hashing design from CRC32 to the package's own 128-bit keyed
// oracle (internal/hasher) and from a byte slice to internal/bitarray's
// packed bit storage. XorFilter and BinaryFuseFilter are new additions
// spec.md §4.7 calls for but the teacher repo has no analogue of; both
// are grounded on the same hypergraph-peeling idea internal/solver
// already implements, specialized to a caller-tunable fingerprint width
// instead of L-bit codeword lanes.
package filter

import (
	"fmt"

	"github.com/caramel-csf/caramel/internal/hasher"
)

// errShortBuffer is returned by each filter's Unmarshal when the input
// is too short to contain a valid header plus the data it claims.
var errShortBuffer = fmt.Errorf("filter: short buffer")

// Kind tags which AMQ construction produced a serialized filter blob,
// per spec.md §6's container format.
type Kind uint8

const (
	KindNone Kind = iota
	KindBloom
	KindXor
	KindBinaryFuse
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBloom:
		return "bloom"
	case KindXor:
		return "xor"
	case KindBinaryFuse:
		return "binaryfuse"
	default:
		return "unknown"
	}
}

// Filter is the common AMQ surface the CSF query path consults.
type Filter interface {
	MightContain(key []byte) bool
	Kind() Kind
	Marshal() []byte
}

// DefaultFingerprintBits is used when a caller leaves
// PrefilterSpec.FingerprintBits at its zero value. 8 bits gives a
// false-positive rate of about 1/256, matching spec.md §4.7's table
// entry for the XOR filter at its default expansion.
const DefaultFingerprintBits = 8

// fingerprintBits derives a `bits`-wide fingerprint from a key's
// 128-bit hash, used by both XorFilter and BinaryFuseFilter. Widening
// bits directly lowers the false-positive rate (≈ 2^-bits), per
// spec.md §4.7's bits/element table. 0 is reserved to mean "empty
// slot" in both constructions, matching the xor/binary fuse filter
// literature's convention, so a true fingerprint of 0 is remapped to 1
// (a negligible, one-in-2^bits bias with no correctness impact on
// MightContain).
func fingerprintBits(h hasher.Hash128, bits uint8) uint64 {
	fp := h.Hi >> (64 - bits)
	if fp == 0 {
		fp = 1
	}
	return fp
}

// resolveFingerprintBits normalizes a caller-supplied FingerprintBits,
// defaulting non-positive values to DefaultFingerprintBits.
func resolveFingerprintBits(bits int) uint8 {
	if bits <= 0 {
		return DefaultFingerprintBits
	}
	if bits > 64 {
		bits = 64
	}
	return uint8(bits)
}
