// Package solver implements the three-stage per-bucket solver spec.md
// §4.6 describes: hypergraph peeling, lazy Gaussian elimination on the
// resulting 2-core, and full dense Gaussian elimination on whatever
// residual the lazy phase could not cheaply fold away — followed by
// back-substitution through both eliminations in reverse order.
//
// Degree bookkeeping is kept as parallel maps rather than a graph of
// pointer-linked nodes, per spec.md §9's "Cyclic references" note: the
// hypergraph is represented struct-of-arrays style even though, unlike
// internal/gf2.System, per-bucket solve state is inherently dynamic
// (rows are removed and merged), so plain maps stand in for what would
// otherwise be parallel slices with O(1) removal.
package solver

import (
	"sort"

	"github.com/caramel-csf/caramel/internal/bitarray"
	"github.com/caramel-csf/caramel/internal/gf2"
)

// DefaultExpansionDelta is the ribbon-style peeling expansion factor
// spec.md §3/§9 names (the reference sources disagree between 1.10 and
// δ≈1.089; see DESIGN.md for the chosen value and rationale).
const DefaultExpansionDelta = 1.10

// DefaultMaxRetries is the seed-retry bound spec.md §7 requires
// ("default bound ≥ 16").
const DefaultMaxRetries = 16

// idleFoldDegree is the max residual degree spec.md §4.6's lazy phase
// will eliminate via substitution-with-fill-in before handing the rest
// to dense Gaussian elimination.
const idleFoldDegree = 2

// Solution is a solved bucket's unknown vector, x_b.
type Solution struct {
	Bits *bitarray.BitArray
}

// substitution is one entry of the combined peel/lazy-elimination stack:
// the variable it determines, the other column groups that row touched
// at the time of elimination, and that row's L-bit RHS.
type substitution struct {
	eliminated uint64
	others     []uint64
	rhs        uint64
}

// rowSet is one active row during elimination: the column groups it
// currently touches (after any merges) and its accumulated L-bit RHS.
type rowSet struct {
	vars map[uint64]struct{}
	rhs  uint64
}

// Solve attempts to solve sys in place, returning ok=false (never an
// error) if the system is not solvable under its current row set — the
// caller is expected to re-seed and rebuild the system and retry, per
// spec.md §4.6.
func Solve(sys *gf2.System) (*Solution, bool) {
	groups, l := sys.Groups, sys.L
	width := groups * uint64(l)
	if width == 0 {
		return &Solution{Bits: bitarray.New(0)}, true
	}

	rows := make(map[int]*rowSet, sys.NumRows())
	varRows := make(map[uint64]map[int]struct{})
	for i := 0; i < sys.NumRows(); i++ {
		h0, h1, h2, rhs := sys.Row(i)
		vars := map[uint64]struct{}{h0: {}, h1: {}, h2: {}}
		rows[i] = &rowSet{vars: vars, rhs: rhs}
		for v := range vars {
			addVarRow(varRows, v, i)
		}
	}

	var stack []substitution
	nextRowID := sys.NumRows()

	// Phase 1: peel to fixpoint.
	fold(rows, varRows, &stack)

	// Phase 2: lazy elimination — fold any variable of residual degree
	// <= idleFoldDegree into one of its rows, merging that row into the
	// other(s) it shares the variable with (fill-in), then re-peel.
	for {
		v, deg, ok := minDegreeVar(varRows)
		if !ok {
			break // no variables left: fully peeled
		}
		if deg == 0 {
			delete(varRows, v)
			continue
		}
		if deg > idleFoldDegree {
			break // hand the rest to dense Gaussian elimination
		}
		mergeOut(rows, varRows, v, &nextRowID, &stack)
		fold(rows, varRows, &stack)
	}

	// Phase 3: dense Gaussian elimination (Gauss-Jordan) over whatever
	// rows/variables remain.
	values := make(map[uint64]uint64) // column group -> solved L-bit value
	if len(rows) > 0 {
		ok := denseSolve(rows, values)
		if !ok {
			return nil, false
		}
	}

	// Back-substitute the combined peel/lazy stack in reverse
	// (most-recently-eliminated first): every entry's `others` are
	// either dense-solved above, or resolved by a later (already-popped)
	// stack entry.
	for i := len(stack) - 1; i >= 0; i-- {
		e := stack[i]
		val := e.rhs
		for _, u := range e.others {
			val ^= values[u]
		}
		values[e.eliminated] = val
	}

	bits := bitarray.New(width)
	for group, val := range values {
		if val == 0 {
			continue
		}
		if err := bits.WriteBits(group*uint64(l), uint64(l), val); err != nil {
			panic(err) // group < groups and l <= 64 are both invariants of System
		}
	}
	return &Solution{Bits: bits}, true
}

// SolveWithRetry rebuilds and re-solves using buildSystem(seed) until a
// solvable system is found or maxRetries is exhausted. buildSystem must
// be a pure function of seed (it is expected to rehash the bucket's
// entries under a new per-bucket seed, per spec.md §4.6).
func SolveWithRetry(buildSystem func(seed uint64) *gf2.System, baseSeed uint64, maxRetries int) (*Solution, uint64, bool) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	seed := baseSeed
	for attempt := 0; attempt < maxRetries; attempt++ {
		sys := buildSystem(seed)
		if sol, ok := Solve(sys); ok {
			return sol, seed, true
		}
		seed = reseed(seed, attempt)
	}
	return nil, seed, false
}

// reseed derives the next retry seed deterministically from the
// previous one, so SolveWithRetry's sequence of attempts is itself
// reproducible given the same baseSeed.
func reseed(seed uint64, attempt int) uint64 {
	x := seed + uint64(attempt+1)*0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func addVarRow(varRows map[uint64]map[int]struct{}, v uint64, row int) {
	m, ok := varRows[v]
	if !ok {
		m = make(map[int]struct{})
		varRows[v] = m
	}
	m[row] = struct{}{}
}

func removeVarRow(varRows map[uint64]map[int]struct{}, v uint64, row int) {
	m, ok := varRows[v]
	if !ok {
		return
	}
	delete(m, row)
	if len(m) == 0 {
		delete(varRows, v)
	}
}

// fold repeatedly removes any variable of residual degree 1 (spec.md
// §4.6 Phase 1, and reused inside Phase 2 after every merge): pop such
// a variable's sole row, record it on the stack, and drop the row.
func fold(rows map[int]*rowSet, varRows map[uint64]map[int]struct{}, stack *[]substitution) {
	var queue []uint64
	for v, rs := range varRows {
		if len(rs) == 1 {
			queue = append(queue, v)
		}
	}

	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		rs, ok := varRows[v]
		if !ok || len(rs) != 1 {
			continue // stale
		}
		var rowID int
		for id := range rs {
			rowID = id
		}
		row := rows[rowID]

		others := make([]uint64, 0, 2)
		for u := range row.vars {
			if u != v {
				others = append(others, u)
			}
		}
		*stack = append(*stack, substitution{eliminated: v, others: others, rhs: row.rhs})

		for u := range row.vars {
			removeVarRow(varRows, u, rowID)
		}
		delete(rows, rowID)

		for _, u := range others {
			if rs2, ok := varRows[u]; ok && len(rs2) == 1 {
				queue = append(queue, u)
			}
		}
	}
}

// minDegreeVar returns the variable with smallest residual degree
// (ties broken by numeric value for determinism).
func minDegreeVar(varRows map[uint64]map[int]struct{}) (uint64, int, bool) {
	best := uint64(0)
	bestDeg := -1
	found := false
	for v, rs := range varRows {
		d := len(rs)
		if !found || d < bestDeg || (d == bestDeg && v < best) {
			best, bestDeg, found = v, d, true
		}
	}
	return best, bestDeg, found
}

// mergeOut eliminates v by folding one of its incident rows into the
// other(s) it shares v with (XOR of variable sets and RHS), recording a
// stack entry so back-substitution can recover v once its row's other
// variables are known.
func mergeOut(rows map[int]*rowSet, varRows map[uint64]map[int]struct{}, v uint64, nextRowID *int, stack *[]substitution) {
	rowIDs := make([]int, 0, len(varRows[v]))
	for id := range varRows[v] {
		rowIDs = append(rowIDs, id)
	}
	sort.Ints(rowIDs) // deterministic choice of which row anchors the substitution

	r1ID := rowIDs[0]
	r1 := rows[r1ID]

	others := make([]uint64, 0, len(r1.vars)-1)
	for u := range r1.vars {
		if u != v {
			others = append(others, u)
		}
	}
	*stack = append(*stack, substitution{eliminated: v, others: others, rhs: r1.rhs})

	for u := range r1.vars {
		removeVarRow(varRows, u, r1ID)
	}
	delete(rows, r1ID)

	for _, r2ID := range rowIDs[1:] {
		r2 := rows[r2ID]
		for u := range r2.vars {
			removeVarRow(varRows, u, r2ID)
		}
		delete(rows, r2ID)

		merged := xorVarSets(r1.vars, r2.vars)
		newID := *nextRowID
		*nextRowID++
		rows[newID] = &rowSet{vars: merged, rhs: r1.rhs ^ r2.rhs}
		for u := range merged {
			addVarRow(varRows, u, newID)
		}
		r1 = rows[newID]
		r1ID = newID
	}
}

func xorVarSets(a, b map[uint64]struct{}) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(a)+len(b))
	for u := range a {
		if _, in := b[u]; !in {
			out[u] = struct{}{}
		}
	}
	for u := range b {
		if _, in := a[u]; !in {
			out[u] = struct{}{}
		}
	}
	return out
}

// denseSolve runs Gauss-Jordan elimination over the remaining rows and
// variables. It writes solved values into `values` and returns false if
// the system is rank-deficient with a non-zero residual (spec.md §4.6:
// "non-zero residual ⇒ system is unsolvable under this seed").
func denseSolve(rows map[int]*rowSet, values map[uint64]uint64) bool {
	cols := make([]uint64, 0)
	colIndex := make(map[uint64]int)
	for _, r := range rows {
		for u := range r.vars {
			if _, ok := colIndex[u]; !ok {
				colIndex[u] = len(cols)
				cols = append(cols, u)
			}
		}
	}
	numCols := len(cols)

	type drow struct {
		bits []uint64 // bitset over columns
		rhs  uint64
	}
	rowIDs := make([]int, 0, len(rows))
	for id := range rows {
		rowIDs = append(rowIDs, id)
	}
	sort.Ints(rowIDs) // deterministic elimination order

	drows := make([]*drow, len(rowIDs))
	words := (numCols + 63) / 64
	for i, id := range rowIDs {
		dr := &drow{bits: make([]uint64, words), rhs: rows[id].rhs}
		for u := range rows[id].vars {
			c := colIndex[u]
			dr.bits[c/64] |= uint64(1) << uint(c%64)
		}
		drows[i] = dr
	}

	pivotRowOf := make([]int, numCols) // -1 if column never got a pivot
	for i := range pivotRowOf {
		pivotRowOf[i] = -1
	}
	used := make([]bool, len(drows))

	getBit := func(dr *drow, c int) bool { return (dr.bits[c/64]>>uint(c%64))&1 == 1 }
	xorRow := func(dst, src *drow) {
		for i := range dst.bits {
			dst.bits[i] ^= src.bits[i]
		}
		dst.rhs ^= src.rhs
	}

	for c := 0; c < numCols; c++ {
		pivot := -1
		for i, dr := range drows {
			if !used[i] && getBit(dr, c) {
				pivot = i
				break
			}
		}
		if pivot == -1 {
			continue // free column/variable: left at its zero default
		}
		used[pivot] = true
		pivotRowOf[c] = pivot
		for i, dr := range drows {
			if i == pivot {
				continue
			}
			if getBit(dr, c) {
				xorRow(dr, drows[pivot])
			}
		}
	}

	for i, dr := range drows {
		if used[i] {
			continue
		}
		allZero := true
		for _, w := range dr.bits {
			if w != 0 {
				allZero = false
				break
			}
		}
		if allZero && dr.rhs != 0 {
			return false
		}
	}

	for c, pivot := range pivotRowOf {
		if pivot == -1 {
			continue
		}
		values[cols[c]] = drows[pivot].rhs
	}
	return true
}
