package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/caramel-csf/caramel/internal/bitarray"
	"github.com/caramel-csf/caramel/internal/hasher"
)

// xorExpansion is the standard xor-filter over-provisioning factor
// (Graf & Lemire, "Xor Filters: Faster and Smaller Than Bloom and
// Cuckoo Filters"): with m ~= 1.23n slots split into three equal
// segments, the construction hypergraph peels completely with high
// probability on the first or second seed attempt.
const xorExpansion = 1.23

// xorMaxRetries bounds the seed-retry loop BuildXorFilter runs when a
// particular seed's hypergraph fails to peel completely, mirroring
// internal/solver's bounded re-seeding (spec.md §4.6/§7).
const xorMaxRetries = 64

// XorFilter is a fingerprint-peeling AMQ filter: each key's three hash
// endpoints' fingerprint slots XOR to the key's own fingerprint, so
// membership is a 3-probe XOR-and-compare. Construction is grounded on
// the same hypergraph-peeling idea internal/solver uses for the GF(2)
// system, specialized to fixed-width fingerprints and no lazy/dense
// fallback phase (over-provisioning alone is enough for a 3-uniform
// hypergraph to peel completely w.h.p.). The fingerprint width is
// caller-tunable (spec.md §6's `XOR{fingerprint_bits}` option): it
// trades filter size for false-positive rate per spec.md §4.7's table.
type XorFilter struct {
	seed         uint64
	size         uint64
	bits         uint8
	fingerprints *bitarray.BitArray
}

// BuildXorFilter constructs a filter over the given keys with the
// given fingerprint width (<=0 uses DefaultFingerprintBits), retrying
// under a fresh seed whenever a particular seed's hypergraph does not
// peel completely.
func BuildXorFilter(keys [][]byte, fingerprintBits int) (*XorFilter, error) {
	bits := resolveFingerprintBits(fingerprintBits)
	n := len(keys)
	if n == 0 {
		return &XorFilter{bits: bits}, nil
	}

	segLen := (uint64(float64(n)*xorExpansion) + 2) / 3
	if segLen < 1 {
		segLen = 1
	}
	size := segLen * 3

	for attempt := 0; attempt < xorMaxRetries; attempt++ {
		seed := uint64(attempt)*0x9E3779B97F4A7C15 + 1
		fp, ok := peelXor(keys, seed, size, bits)
		if ok {
			return &XorFilter{seed: seed, size: size, bits: bits, fingerprints: fp}, nil
		}
	}
	return nil, fmt.Errorf("filter: xor construction did not converge after %d attempts", xorMaxRetries)
}

func peelXor(keys [][]byte, seed, size uint64, bits uint8) (*bitarray.BitArray, bool) {
	h := hasher.New(seed)
	n := len(keys)

	type edge struct{ a, b, c uint64 }
	edges := make([]edge, n)
	fps := make([]uint64, n)
	degree := make([]int, size)
	slotRows := make([][]int, size)

	for i, k := range keys {
		ep := h.Endpoints(k, size)
		edges[i] = edge{ep.H0, ep.H1, ep.H2}
		fps[i] = fingerprintBits(h.Hash128(k), bits)
		for _, v := range [3]uint64{ep.H0, ep.H1, ep.H2} {
			degree[v]++
			slotRows[v] = append(slotRows[v], i)
		}
	}

	rowAlive := make([]bool, n)
	for i := range rowAlive {
		rowAlive[i] = true
	}

	var queue []uint64
	for v := uint64(0); v < size; v++ {
		if degree[v] == 1 {
			queue = append(queue, v)
		}
	}

	type peelEntry struct {
		slot  uint64
		row   int
		other [2]uint64
	}
	var order []peelEntry

	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if degree[v] != 1 {
			continue
		}
		row := -1
		for _, r := range slotRows[v] {
			if rowAlive[r] {
				row = r
				break
			}
		}
		if row == -1 {
			continue
		}
		rowAlive[row] = false
		e := edges[row]
		others := [2]uint64{}
		oi := 0
		for _, u := range [3]uint64{e.a, e.b, e.c} {
			if u != v {
				others[oi] = u
				oi++
			} else {
				degree[u] = 0
			}
		}
		for _, u := range others {
			degree[u]--
			if degree[u] == 1 {
				queue = append(queue, u)
			}
		}
		order = append(order, peelEntry{slot: v, row: row, other: others})
	}

	if len(order) != n {
		return nil, false
	}

	values := make([]uint64, size)
	for i := len(order) - 1; i >= 0; i-- {
		e := order[i]
		values[e.slot] = fps[e.row] ^ values[e.other[0]] ^ values[e.other[1]]
	}

	packed := bitarray.New(size * uint64(bits))
	for i, v := range values {
		packed.WriteBits(uint64(i)*uint64(bits), uint64(bits), v)
	}
	return packed, true
}

// MightContain reports whether key may be a member.
func (f *XorFilter) MightContain(key []byte) bool {
	if f.size == 0 {
		return false
	}
	h := hasher.New(f.seed)
	ep := h.Endpoints(key, f.size)
	want := fingerprintBits(h.Hash128(key), f.bits)
	w := uint64(f.bits)
	v0, _ := f.fingerprints.ReadBits(ep.H0*w, w)
	v1, _ := f.fingerprints.ReadBits(ep.H1*w, w)
	v2, _ := f.fingerprints.ReadBits(ep.H2*w, w)
	return v0^v1^v2 == want
}

func (f *XorFilter) Kind() Kind { return KindXor }

// Marshal serializes the filter: seed, slot count, fingerprint width,
// then the packed fingerprint bits.
func (f *XorFilter) Marshal() []byte {
	var fpBytes []byte
	if f.fingerprints != nil {
		fpBytes = f.fingerprints.Bytes()
	}
	out := make([]byte, 17+len(fpBytes))
	binary.BigEndian.PutUint64(out[0:8], f.seed)
	binary.BigEndian.PutUint64(out[8:16], f.size)
	out[16] = f.bits
	copy(out[17:], fpBytes)
	return out
}

// UnmarshalXorFilter parses bytes produced by Marshal.
func UnmarshalXorFilter(data []byte) (*XorFilter, error) {
	if len(data) < 17 {
		return nil, errShortBuffer
	}
	seed := binary.BigEndian.Uint64(data[0:8])
	size := binary.BigEndian.Uint64(data[8:16])
	bits := data[16]
	fpBytes := data[17:]
	if size == 0 {
		return &XorFilter{seed: seed, bits: bits}, nil
	}
	fingerprints := bitarray.FromBytes(fpBytes, size*uint64(bits))
	return &XorFilter{seed: seed, size: size, bits: bits, fingerprints: fingerprints}, nil
}
