// Package hasher implements the keyed 128-bit hash oracle spec.md §4.2
// requires: a seed plus a key deterministically produces (h0, h1, h2)
// edge endpoints into [0, m) and a tag used for bucket dispatch and
// 128-bit collision detection.
//
// The oracle itself is github.com/gtank/blake2's keyed BLAKE2b (one of
// the five teacher-pack repos), run with a 16-byte digest so a single
// call produces the full 128-bit hash spec.md treats as "a 128-bit
// keyed hash such as SpookyHash V2" — BLAKE2b is a drop-in pluggable
// substitute with the same stated properties (uniform, seed-keyed,
// independent across reseeds). A second, non-cryptographic hash
// (cespare/xxhash/v2, pulled in via rpcpool-yellowstone-faithful) is
// used only for the hot bucket_id dispatch path, so that path never
// has to run the keyed oracle.
package hasher

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/gtank/blake2/blake2b"
)

const digestSize = 16 // 128 bits

// Hash128 is the full 128-bit output of the keyed oracle, split into two
// 64-bit lanes as spec.md §4.2 describes.
type Hash128 struct {
	Hi uint64
	Lo uint64
}

// Equal reports whether two hashes are bit-identical. Used by the
// bucketed hash store to detect an input-key collision under the oracle.
func (h Hash128) Equal(o Hash128) bool { return h.Hi == o.Hi && h.Lo == o.Lo }

// Endpoints are the three pairwise-distinct edge indices into [0, m)
// that a key's GF(2) row touches.
type Endpoints struct {
	H0, H1, H2 uint64
}

// Hasher is the keyed oracle for one seed σ. A Hasher is immutable;
// Reseed returns a new Hasher for a different σ (used by the solver's
// per-bucket seed retry and by the filter's fingerprint-assignment
// retry).
//
// keyed and keyedTag hold the post-key-schedule state of the BLAKE2b
// and xxhash digests, captured once in New. blake2b.Digest.Reset
// panics ("BLAKE2 cannot be reset without storing the key"), so a
// single long-lived *Digest can't be reused across Write calls for
// different messages; both Digest types, though, are plain value
// structs with no pointers or slices, so a cheap value-copy of the
// keyed state followed by Write+Sum reproduces exactly what a fresh
// NewDigest/New would do, without repeating the key schedule or
// round-tripping through the heap on every query. This keeps Query
// (spec.md §5, "synchronous, non-blocking, and allocation-free")
// allocation-free on the steady-state path and safe to call
// concurrently from multiple goroutines sharing one Hasher, since each
// call works off its own stack copy.
type Hasher struct {
	seed     uint64
	key      [8]byte
	keyed    blake2b.Digest
	keyedTag xxhash.Digest
}

// New returns a Hasher keyed by seed.
func New(seed uint64) *Hasher {
	h := &Hasher{seed: seed}
	binary.LittleEndian.PutUint64(h.key[:], seed)

	d, err := blake2b.NewDigest(h.key[:], nil, nil, digestSize)
	if err != nil {
		// Only possible for a malformed key/salt/personalization/size,
		// none of which vary at runtime here.
		panic(err)
	}
	h.keyed = *d

	tag := xxhash.New()
	_, _ = tag.Write(h.key[:])
	h.keyedTag = *tag

	return h
}

// Seed returns the seed this Hasher was constructed with.
func (h *Hasher) Seed() uint64 { return h.seed }

// Reseed returns a new Hasher keyed by a different seed, independent of
// the receiver per spec.md §4.2's "re-seeding yields statistically
// independent outputs".
func (h *Hasher) Reseed(seed uint64) *Hasher { return New(seed) }

// Hash128 computes the full 128-bit keyed hash of key.
func (h *Hasher) Hash128(key []byte) Hash128 {
	d := h.keyed // stack copy of the post-key-schedule state
	_, _ = d.Write(key)
	var buf [digestSize]byte
	out := d.Sum(buf[:0])
	return Hash128{
		Hi: binary.BigEndian.Uint64(out[0:8]),
		Lo: binary.BigEndian.Uint64(out[8:16]),
	}
}

// BucketTag is a fast, non-cryptographic 64-bit hash used only to
// dispatch a key to its bucket (top b bits of the result). It must be
// a pure function of (seed, key) but need not be collision-resistant:
// true collision detection runs on Hash128.
func (h *Hasher) BucketTag(key []byte) uint64 {
	d := h.keyedTag // stack copy already primed with h.key
	_, _ = d.Write(key)
	return d.Sum64()
}

// splitmix64 is a cheap, well-distributed integer mixer used to derive
// a third independent lane from the two returned by Hash128, so that
// h0/h1/h2 need not all come from literally disjoint hash bits.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// Endpoints computes (h0, h1, h2), three pairwise-distinct indices into
// [0, m). Pairwise distinctness is achieved exactly as spec.md §4.2
// mandates: partition [0, m) into three disjoint ranges of size m/3 and
// take one endpoint from each range, so no two lanes can ever collide
// regardless of hash value.
func (h *Hasher) Endpoints(key []byte, m uint64) Endpoints {
	hv := h.Hash128(key)
	third := m / 3

	lane2 := splitmix64(hv.Hi ^ (hv.Lo<<1 | hv.Lo>>63) ^ h.seed)

	r0start := uint64(0)
	r1start := third
	r2start := 2 * third
	r2size := m - r2start // absorbs the remainder so ranges cover all of [0, m)

	return Endpoints{
		H0: r0start + hv.Hi%third,
		H1: r1start + hv.Lo%third,
		H2: r2start + lane2%r2size,
	}
}
