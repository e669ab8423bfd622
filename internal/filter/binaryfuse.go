package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/caramel-csf/caramel/internal/bitarray"
	"github.com/caramel-csf/caramel/internal/hasher"
)

// binaryFuseExpansion is the target slots-per-key ratio. Binary fuse
// filters (Graf & Lemire, 2022) achieve a lower expansion than a plain
// xor filter (around 1.13 rather than 1.23) by drawing each key's three
// probes from three overlapping, consecutive segments instead of three
// disjoint equal ranges — this trades a little peel robustness for
// better cache locality and a smaller array. The segment-length formula
// below is a simplified stand-in for the paper's exact lookup table,
// tuned only for peel success, not for matching the paper's array size
// to the byte.
const binaryFuseExpansion = 1.13

const binaryFuseMaxRetries = 96

// BinaryFuseFilter is the segment-local relative of XorFilter: each
// key's three hash probes fall in three consecutive, overlapping
// segments (rather than three disjoint thirds), which keeps a query's
// touched memory close together. Like XorFilter, its fingerprint width
// is caller-tunable (spec.md §6's `BinaryFuse{fingerprint_bits}`
// option).
type BinaryFuseFilter struct {
	seed          uint64
	segmentLength uint64
	segmentCount  uint64
	bits          uint8
	fingerprints  *bitarray.BitArray
}

// BuildBinaryFuseFilter constructs a filter over keys with the given
// fingerprint width (<=0 uses DefaultFingerprintBits), retrying under a
// fresh seed whenever peeling does not converge.
func BuildBinaryFuseFilter(keys [][]byte, fingerprintBits int) (*BinaryFuseFilter, error) {
	fpBits := resolveFingerprintBits(fingerprintBits)
	n := len(keys)
	if n == 0 {
		return &BinaryFuseFilter{bits: fpBits}, nil
	}

	target := uint64(float64(n) * binaryFuseExpansion)
	segmentLength := nextPow2(max64(4, target/64))
	segmentCount := (target + segmentLength - 1) / segmentLength
	if segmentCount < 1 {
		segmentCount = 1
	}

	for attempt := 0; attempt < binaryFuseMaxRetries; attempt++ {
		seed := uint64(attempt)*0xD6E8FEB86659FD93 + 7
		fp, ok := peelBinaryFuse(keys, seed, segmentLength, segmentCount, fpBits)
		if ok {
			return &BinaryFuseFilter{seed: seed, segmentLength: segmentLength, segmentCount: segmentCount, bits: fpBits, fingerprints: fp}, nil
		}
	}
	return nil, fmt.Errorf("filter: binary fuse construction did not converge after %d attempts", binaryFuseMaxRetries)
}

func probes(hv hasher.Hash128, segmentLength, segmentCount uint64) (h0, h1, h2 uint64) {
	start, _ := bits.Mul64(hv.Hi, segmentCount)
	m2 := mixBF(hv.Lo)
	m3 := mixBF(hv.Lo ^ 0x9E3779B97F4A7C15)
	h0 = start*segmentLength + hv.Hi%segmentLength
	h1 = (start+1)*segmentLength + m2%segmentLength
	h2 = (start+2)*segmentLength + m3%segmentLength
	return
}

func mixBF(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xFF51AFD7ED558CCD
	x ^= x >> 33
	x *= 0xC4CEB9FE1A85EC53
	x ^= x >> 33
	return x
}

func peelBinaryFuse(keys [][]byte, seed, segmentLength, segmentCount uint64, fpBits uint8) (*bitarray.BitArray, bool) {
	h := hasher.New(seed)
	n := len(keys)
	size := (segmentCount + 2) * segmentLength

	type edge struct{ a, b, c uint64 }
	edges := make([]edge, n)
	fps := make([]uint64, n)
	degree := make([]int, size)
	slotRows := make([][]int, size)

	for i, k := range keys {
		hv := h.Hash128(k)
		a, b, c := probes(hv, segmentLength, segmentCount)
		edges[i] = edge{a, b, c}
		fps[i] = fingerprintBits(hv, fpBits)
		for _, v := range [3]uint64{a, b, c} {
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

	packed := bitarray.New(size * uint64(fpBits))
	for i, v := range values {
		packed.WriteBits(uint64(i)*uint64(fpBits), uint64(fpBits), v)
	}
	return packed, true
}

// MightContain reports whether key may be a member.
func (f *BinaryFuseFilter) MightContain(key []byte) bool {
	if f.fingerprints == nil {
		return false
	}
	h := hasher.New(f.seed)
	hv := h.Hash128(key)
	a, b, c := probes(hv, f.segmentLength, f.segmentCount)
	want := fingerprintBits(hv, f.bits)
	w := uint64(f.bits)
	v0, _ := f.fingerprints.ReadBits(a*w, w)
	v1, _ := f.fingerprints.ReadBits(b*w, w)
	v2, _ := f.fingerprints.ReadBits(c*w, w)
	return v0^v1^v2 == want
}

func (f *BinaryFuseFilter) Kind() Kind { return KindBinaryFuse }

// Marshal serializes the filter: seed, segment length, segment count,
// fingerprint width, then the packed fingerprint bits.
func (f *BinaryFuseFilter) Marshal() []byte {
	var fpBytes []byte
	if f.fingerprints != nil {
		fpBytes = f.fingerprints.Bytes()
	}
	out := make([]byte, 25+len(fpBytes))
	binary.BigEndian.PutUint64(out[0:8], f.seed)
	binary.BigEndian.PutUint64(out[8:16], f.segmentLength)
	binary.BigEndian.PutUint64(out[16:24], f.segmentCount)
	out[24] = f.bits
	copy(out[25:], fpBytes)
	return out
}

// UnmarshalBinaryFuseFilter parses bytes produced by Marshal.
func UnmarshalBinaryFuseFilter(data []byte) (*BinaryFuseFilter, error) {
	if len(data) < 25 {
		return nil, errShortBuffer
	}
	seed := binary.BigEndian.Uint64(data[0:8])
	segLen := binary.BigEndian.Uint64(data[8:16])
	segCount := binary.BigEndian.Uint64(data[16:24])
	fpBits := data[24]
	fpBytes := data[25:]
	if segCount == 0 {
		return &BinaryFuseFilter{seed: seed, bits: fpBits}, nil
	}
	size := (segCount + 2) * segLen
	fingerprints := bitarray.FromBytes(fpBytes, size*uint64(fpBits))
	return &BinaryFuseFilter{seed: seed, segmentLength: segLen, segmentCount: segCount, bits: fpBits, fingerprints: fingerprints}, nil
}

func nextPow2(x uint64) uint64 {
	if x == 0 {
		return 1
	}
	p := uint64(1)
	for p < x {
		p <<= 1
	}
	return p
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
