// Package bitarray implements a fixed-width packed bitstring with
// random single-bit access and branchless bulk bit-range reads/writes.
//
// Layout mirrors the teacher's bit-packed bitmap addressing in
// internal/simd (bit i of word i/64, little-endian within the word) and
// its record layout in internal/common/common.go (fixed-width records
// written/read in bulk rather than byte-by-byte).
package bitarray

import "github.com/caramel-csf/caramel/internal/cerrors"

// ErrInvalidOffset is returned for out-of-range bit indices or widths.
var ErrInvalidOffset = cerrors.ErrInvalidOffset

// BitArray is a packed mutable bitstring of fixed length Len(). It never
// reallocates after New/FromWords: all writes are in-place.
type BitArray struct {
	words []uint64 // words[len(words)-1] is a zero padding word, never addressed by Len
	n     uint64
}

// New returns a zero-initialized bitstring of length n bits.
func New(n uint64) *BitArray {
	nw := wordsFor(n) + 1 // +1 padding word so cross-word reads never need a bounds check
	return &BitArray{words: make([]uint64, nw), n: n}
}

// FromWords wraps an existing word slice (e.g. loaded from disk) as a
// BitArray of length n bits. The slice must have at least wordsFor(n)+1
// entries; a padding word is appended if it does not.
func FromWords(words []uint64, n uint64) *BitArray {
	need := wordsFor(n) + 1
	if len(words) < need {
		padded := make([]uint64, need)
		copy(padded, words)
		words = padded
	}
	return &BitArray{words: words, n: n}
}

func wordsFor(n uint64) int {
	return int((n + 63) / 64)
}

// Len returns the bitstring's length in bits.
func (b *BitArray) Len() uint64 { return b.n }

// Words returns the backing words, excluding the trailing padding word.
// Callers must not retain a reference across further mutation.
func (b *BitArray) Words() []uint64 {
	return b.words[:wordsFor(b.n)]
}

// Get returns the bit at index i (0 or 1).
func (b *BitArray) Get(i uint64) int {
	if i >= b.n {
		panic(ErrInvalidOffset)
	}
	return int((b.words[i/64] >> (i % 64)) & 1)
}

// Set writes the bit at index i to v (0 or 1).
func (b *BitArray) Set(i uint64, v int) {
	if i >= b.n {
		panic(ErrInvalidOffset)
	}
	mask := uint64(1) << (i % 64)
	if v != 0 {
		b.words[i/64] |= mask
	} else {
		b.words[i/64] &^= mask
	}
}

// Flip toggles the bit at index i.
func (b *BitArray) Flip(i uint64) {
	if i >= b.n {
		panic(ErrInvalidOffset)
	}
	b.words[i/64] ^= uint64(1) << (i % 64)
}

// ReadBits returns bits [i, i+w) as a right-aligned, little-endian u64.
// 1 <= w <= 64 and i+w <= Len().
func (b *BitArray) ReadBits(i, w uint64) (uint64, error) {
	if w < 1 || w > 64 || i+w > b.n {
		return 0, ErrInvalidOffset
	}
	return readBits(b.words, i, w), nil
}

// readBits is the branchless bulk reader: it always loads two adjacent
// words and combines them with shifts, relying on the padding word in
// New/FromWords so the "hi" word load is never out of range even when
// [i, i+w) falls entirely within a single word.
func readBits(words []uint64, i, w uint64) uint64 {
	wordIdx := i / 64
	bitOff := i % 64
	lo := words[wordIdx]
	hi := words[wordIdx+1]

	// Combine lo/hi into a 128-bit-equivalent window starting at bitOff,
	// without branching on whether the range actually crosses the
	// boundary (hi contributes zero bits in-range when it doesn't).
	var window uint64
	if bitOff == 0 {
		window = lo
	} else {
		window = (lo >> bitOff) | (hi << (64 - bitOff))
	}
	if w == 64 {
		return window
	}
	return window & ((uint64(1) << w) - 1)
}

// WriteBits writes the low w bits of value into [i, i+w).
func (b *BitArray) WriteBits(i, w, value uint64) error {
	if w < 1 || w > 64 || i+w > b.n {
		return ErrInvalidOffset
	}
	if w < 64 {
		value &= (uint64(1) << w) - 1
	}
	writeBits(b.words, i, w, value)
	return nil
}

func writeBits(words []uint64, i, w, value uint64) {
	wordIdx := i / 64
	bitOff := i % 64

	var mask uint64
	if w == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << w) - 1
	}

	words[wordIdx] = (words[wordIdx] &^ (mask << bitOff)) | (value << bitOff)

	spill := bitOff + w
	if spill > 64 {
		spillBits := spill - 64
		spillMask := (uint64(1) << spillBits) - 1
		words[wordIdx+1] = (words[wordIdx+1] &^ spillMask) | (value >> (64 - bitOff))
	}
}

// Bytes packs the bitstring into a little-endian byte slice, one byte
// per 8 bits (the final byte zero-padded past Len()). Used to persist
// a BitArray inside a larger binary container without going through an
// intermediate []uint64.
func (b *BitArray) Bytes() []byte {
	words := b.Words()
	n := (b.n + 7) / 8
	out := make([]byte, n)
	for i := range out {
		w := words[i/8]
		out[i] = byte(w >> (8 * uint(i%8)))
	}
	return out
}

// FromBytes is the inverse of Bytes: it unpacks data (little-endian, as
// produced by Bytes) into a BitArray of length n bits.
func FromBytes(data []byte, n uint64) *BitArray {
	nw := (len(data) + 7) / 8
	words := make([]uint64, nw)
	for i, bb := range data {
		words[i/8] |= uint64(bb) << (8 * uint(i%8))
	}
	return FromWords(words, n)
}

// XorRange XORs w bits from src starting at srcOff into the receiver
// starting at dstOff, in chunks of up to 64 bits. Used by csf.Build to
// place each bucket's solution bits into the global bitstring S.
func (b *BitArray) XorRange(dstOff uint64, src *BitArray, srcOff, w uint64) error {
	if dstOff+w > b.n || srcOff+w > src.n {
		return ErrInvalidOffset
	}
	for w > 0 {
		chunk := w
		if chunk > 64 {
			chunk = 64
		}
		v := readBits(src.words, srcOff, chunk)
		cur := readBits(b.words, dstOff, chunk)
		writeBits(b.words, dstOff, chunk, cur^v)
		dstOff += chunk
		srcOff += chunk
		w -= chunk
	}
	return nil
}
