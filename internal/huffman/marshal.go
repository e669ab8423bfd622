package huffman

import (
	"encoding/binary"
	"fmt"
)

// Marshal serializes cb into a self-contained blob using valueMarshal to
// encode each symbol, following the teacher's fixed-record bulk-write
// style (internal/common/common.go): a symbol count, then one
// variable-length record per symbol.
func (cb *Codebook[T]) Marshal(valueMarshal func(T) []byte) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(cb.symbols)))

	for _, sym := range cb.symbols {
		code := cb.codes[sym]
		vb := valueMarshal(sym)

		rec := make([]byte, 4+len(vb)+1+8)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(len(vb)))
		copy(rec[4:4+len(vb)], vb)
		rec[4+len(vb)] = code.Length
		binary.LittleEndian.PutUint64(rec[5+len(vb):], code.Bits)
		buf = append(buf, rec...)
	}
	return buf
}

// Unmarshal reconstructs a Codebook from the blob Marshal produced,
// using valueUnmarshal to decode each symbol. The canonical codes are
// not recomputed — they're read back verbatim, since Marshal persists
// the already-assigned (length, bits) pair per symbol.
func Unmarshal[T comparable](data []byte, valueUnmarshal func([]byte) T) (*Codebook[T], error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("huffman: codebook blob too short")
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	off := 4

	symbols := make([]T, n)
	codes := make(map[T]Code, n)
	var maxLen uint8

	for i := uint32(0); i < n; i++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("huffman: truncated codebook record")
		}
		vlen := int(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
		if off+vlen+1+8 > len(data) {
			return nil, fmt.Errorf("huffman: truncated codebook record")
		}
		sym := valueUnmarshal(data[off : off+vlen])
		off += vlen
		length := data[off]
		off++
		bits := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8

		symbols[i] = sym
		codes[sym] = Code{Length: length, Bits: bits}
		if length > maxLen {
			maxLen = length
		}
	}

	cb := &Codebook[T]{symbols: symbols, codes: codes}
	if n == 1 {
		cb.CodeLength = 0
		cb.single = symbols[0]
		return cb, nil
	}
	cb.CodeLength = maxLen
	cb.buildDecodeTable()
	return cb, nil
}
