// Package huffman implements the per-bucket canonical, length-limited
// Huffman codec spec.md §4.4 describes: given the empirical value
// distribution observed in one bucket, derive (codebook, L_b) with
// L_b <= 32, encode values to L_b-bit, zero-padded, LSB-first
// bitstrings, and decode an L_b-bit word back to its symbol via a
// single table lookup.
//
// Binary encode/decode of the codebook table (marshal.go) writes one
// length-prefixed record per symbol: the marshalled symbol, its code
// length, and its code bits.
package huffman

import (
	"container/heap"
	"fmt"
	"sort"
)

// MaxCodeLength is the length limit spec.md §4.4 names.
const MaxCodeLength = 32

// Code is one symbol's canonical code: Length bits of Bits, stored
// LSB-first (bit 0 of Bits is the first transmitted bit).
type Code struct {
	Length uint8
	Bits   uint64
}

// Codebook is the canonical Huffman code for one bucket's value
// distribution, over a symbol alphabet of type T.
type Codebook[T comparable] struct {
	// CodeLength is L_b, the width every GF(2) row's RHS uses for this
	// bucket (0 for the degenerate single-symbol alphabet, in which case
	// no system/solver stage runs for the bucket at all).
	CodeLength uint8

	symbols []T        // canonical order: sorted by (length, first-seen index)
	codes   map[T]Code // symbol -> code
	decode  []T        // decode table of size 2^CodeLength, nil if CodeLength == 0
	single  T          // valid only when CodeLength == 0
}

// Build derives a canonical, length-limited Huffman codebook from the
// (possibly repeated) sequence of observed values.
func Build[T comparable](values []T) (*Codebook[T], error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("huffman: empty value sequence")
	}

	freq := map[T]uint64{}
	order := map[T]int{}
	for _, v := range values {
		if _, ok := order[v]; !ok {
			order[v] = len(order)
		}
		freq[v]++
	}

	symbols := make([]T, 0, len(freq))
	for v := range freq {
		symbols = append(symbols, v)
	}
	sort.Slice(symbols, func(i, j int) bool { return order[symbols[i]] < order[symbols[j]] })

	if len(symbols) == 1 {
		return &Codebook[T]{CodeLength: 0, symbols: symbols, codes: map[T]Code{symbols[0]: {}}, single: symbols[0]}, nil
	}

	freqs := make([]uint64, len(symbols))
	for i, s := range symbols {
		freqs[i] = freq[s]
	}

	lengths := naturalHuffmanLengths(freqs)
	maxLen := 0
	for _, l := range lengths {
		if l > maxLen {
			maxLen = l
		}
	}
	if maxLen > MaxCodeLength {
		lengths = packageMergeLengths(freqs, MaxCodeLength)
		maxLen = MaxCodeLength
	}

	cb := assignCanonicalCodes(symbols, lengths)
	cb.buildDecodeTable()
	return cb, nil
}

// Encode returns the LSB-first, zero-right-padded CodeLength-bit code
// for v (the Huffman prefix only; callers needing the full
// right-padded-to-L_b RHS should left-shift nothing further — the value
// already occupies the low `Length` bits with the remaining high bits
// implicitly zero up to CodeLength).
func (cb *Codebook[T]) Encode(v T) (Code, bool) {
	c, ok := cb.codes[v]
	return c, ok
}

// Decode reads an L_b-bit (LSB-first) word and returns its symbol. The
// word must have been produced by reading CodeLength bits from the
// solved global S at a key's three endpoints, XORed together.
func (cb *Codebook[T]) Decode(word uint64) T {
	if cb.CodeLength == 0 {
		return cb.single
	}
	return cb.decode[word&((1<<cb.CodeLength)-1)]
}

// Symbols returns the canonical symbol order (by ascending code length,
// ties broken by first-seen order in the input).
func (cb *Codebook[T]) Symbols() []T { return cb.symbols }

// Lengths returns, in Symbols() order, each symbol's code length.
func (cb *Codebook[T]) Lengths() []uint8 {
	out := make([]uint8, len(cb.symbols))
	for i, s := range cb.symbols {
		out[i] = cb.codes[s].Length
	}
	return out
}

func (cb *Codebook[T]) buildDecodeTable() {
	if cb.CodeLength == 0 {
		return
	}
	size := 1 << cb.CodeLength
	table := make([]T, size)
	for sym, code := range cb.codes {
		lowMask := uint64(1)<<code.Length - 1
		v := code.Bits & lowMask
		step := uint64(1) << code.Length
		for idx := v; idx < uint64(size); idx += step {
			table[idx] = sym
		}
	}
	cb.decode = table
}

// huffNode is a min-heap node used to build the natural (unbounded)
// Huffman tree.
type huffNode struct {
	weight      uint64
	symbolIdx   int // >= 0 for a leaf, -1 for an internal node
	left, right *huffNode
}

type nodeHeap []*huffNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	// Deterministic tie-break keeps Build's output reproducible for a
	// fixed input order, independent of map iteration order elsewhere.
	return h[i].symbolIdx < h[j].symbolIdx
}
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(*huffNode)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// naturalHuffmanLengths returns, for freqs in symbol order, the code
// length Huffman's tree construction assigns each symbol (unbounded:
// may exceed MaxCodeLength, in which case the caller falls back to
// packageMergeLengths).
func naturalHuffmanLengths(freqs []uint64) []int {
	n := len(freqs)
	h := make(nodeHeap, n)
	for i, f := range freqs {
		h[i] = &huffNode{weight: f, symbolIdx: i}
	}
	heap.Init(&h)

	nextInternal := n // used only for tie-break ordering of internal nodes
	for h.Len() > 1 {
		a := heap.Pop(&h).(*huffNode)
		b := heap.Pop(&h).(*huffNode)
		parent := &huffNode{weight: a.weight + b.weight, symbolIdx: -(nextInternal + 1), left: a, right: b}
		nextInternal++
		heap.Push(&h, parent)
	}

	lengths := make([]int, n)
	var walk func(node *huffNode, depth int)
	walk = func(node *huffNode, depth int) {
		if node.left == nil && node.right == nil {
			if depth == 0 {
				depth = 1 // a single-node tree still needs 1 bit; Build handles n==1 separately anyway
			}
			lengths[node.symbolIdx] = depth
			return
		}
		walk(node.left, depth+1)
		walk(node.right, depth+1)
	}
	if h.Len() == 1 {
		walk(h[0], 0)
	}
	return lengths
}

// packageMergeLengths computes length-limited optimal code lengths via
// the package-merge (coin-collector) algorithm, bounding every length to
// maxLen. freqs is in symbol order; the result is too.
func packageMergeLengths(freqs []uint64, maxLen int) []int {
	n := len(freqs)

	type item struct {
		weight uint64
		counts []uint32 // per-symbol inclusion count represented by this (leaf or package) item
	}

	leaves := func() []item {
		items := make([]item, n)
		for i, f := range freqs {
			counts := make([]uint32, n)
			counts[i] = 1
			items[i] = item{weight: f, counts: counts}
		}
		return items
	}

	sortByWeight := func(items []item) {
		sort.SliceStable(items, func(i, j int) bool { return items[i].weight < items[j].weight })
	}

	current := leaves()
	sortByWeight(current)

	for level := 2; level <= maxLen; level++ {
		packages := make([]item, 0, len(current)/2)
		for i := 0; i+1 < len(current); i += 2 {
			a, b := current[i], current[i+1]
			merged := make([]uint32, n)
			for k := 0; k < n; k++ {
				merged[k] = a.counts[k] + b.counts[k]
			}
			packages = append(packages, item{weight: a.weight + b.weight, counts: merged})
		}
		next := make([]item, 0, len(packages)+n)
		next = append(next, packages...)
		next = append(next, leaves()...)
		sortByWeight(next)
		current = next
	}

	take := 2 * (n - 1)
	if take > len(current) {
		take = len(current)
	}
	lengths := make([]int, n)
	for i := 0; i < take; i++ {
		for k := 0; k < n; k++ {
			lengths[k] += int(current[i].counts[k])
		}
	}
	for i := range lengths {
		if lengths[i] == 0 {
			lengths[i] = maxLen
		}
	}
	return lengths
}

// assignCanonicalCodes builds the canonical code: symbols are ordered
// by (length, then the order they already appear in `symbols`, which
// Build populates by first-seen order), and codes are assigned
// consecutively per spec.md §4.4, then bit-reversed into the LSB-first
// storage form.
func assignCanonicalCodes[T comparable](symbols []T, lengths []int) *Codebook[T] {
	type sl struct {
		sym T
		len int
		pos int
	}
	items := make([]sl, len(symbols))
	for i, s := range symbols {
		items[i] = sl{sym: s, len: lengths[i], pos: i}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].len != items[j].len {
			return items[i].len < items[j].len
		}
		return items[i].pos < items[j].pos
	})

	codes := make(map[T]Code, len(items))
	canonicalOrder := make([]T, len(items))
	var code uint64
	prevLen := 0
	maxLen := uint8(0)
	for i, it := range items {
		if it.len > prevLen {
			code <<= uint(it.len - prevLen)
			prevLen = it.len
		}
		codes[it.sym] = Code{Length: uint8(it.len), Bits: reverseBits(code, uint(it.len))}
		canonicalOrder[i] = it.sym
		if uint8(it.len) > maxLen {
			maxLen = uint8(it.len)
		}
		code++
	}

	return &Codebook[T]{CodeLength: maxLen, symbols: canonicalOrder, codes: codes}
}

// reverseBits reverses the low `n` bits of v, converting a canonical
// MSB-first codeword into the LSB-first storage form spec.md §4.4
// requires.
func reverseBits(v uint64, n uint) uint64 {
	var out uint64
	for i := uint(0); i < n; i++ {
		out = (out << 1) | (v & 1)
		v >>= 1
	}
	return out
}
