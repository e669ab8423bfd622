// Package gf2 represents one bucket's sparse linear system over GF(2)
// (spec.md §4.5): one row per key, each row touching exactly three
// "column group" unknowns, each L-bit wide (the lane width is the
// bucket's Huffman code length). Row storage is struct-of-arrays per
// spec.md §9's guidance to avoid a pointer-chasing graph representation.
package gf2

// System is the assembled A·x = b system for one bucket. The unknown
// vector has Groups column groups, each L bits wide, for a total of
// Groups*L unknown bits.
type System struct {
	Groups uint64 // number of column groups (m_b / L in spec.md §3's terms)
	L      uint8  // lane width: the bucket's Huffman code length L_b

	h0, h1, h2 []uint64 // column-group index per row
	rhs        []uint64 // right-padded L-bit code value per row, right-aligned in a uint64
}

// New returns an empty system over `groups` column groups, each `l` bits
// wide, pre-sized for `rows` rows.
func New(groups uint64, l uint8, rows int) *System {
	return &System{
		Groups: groups,
		L:      l,
		h0:     make([]uint64, 0, rows),
		h1:     make([]uint64, 0, rows),
		h2:     make([]uint64, 0, rows),
		rhs:    make([]uint64, 0, rows),
	}
}

// AddRow appends the equation x[h0] ^ x[h1] ^ x[h2] = rhs, where rhs
// holds the key's Huffman code right-padded with zeros to L bits.
func (s *System) AddRow(h0, h1, h2, rhs uint64) {
	s.h0 = append(s.h0, h0)
	s.h1 = append(s.h1, h1)
	s.h2 = append(s.h2, h2)
	s.rhs = append(s.rhs, rhs)
}

// NumRows returns the number of equations in the system.
func (s *System) NumRows() int { return len(s.h0) }

// Row returns row i's three column-group endpoints and its RHS.
func (s *System) Row(i int) (h0, h1, h2, rhs uint64) {
	return s.h0[i], s.h1[i], s.h2[i], s.rhs[i]
}

// BitWidth returns the total unknown-vector width m_b = Groups*L.
func (s *System) BitWidth() uint64 { return s.Groups * uint64(s.L) }

// Reset clears all rows, keeping the allocated capacity, for seed-retry
// rebuilds (spec.md §4.6's "re-seed the bucket ... rebuild (h0,h1,h2)
// for all its rows, and rerun").
func (s *System) Reset() {
	s.h0 = s.h0[:0]
	s.h1 = s.h1[:0]
	s.h2 = s.h2[:0]
	s.rhs = s.rhs[:0]
}
