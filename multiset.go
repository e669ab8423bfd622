package caramel

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/caramel-csf/caramel/internal/worker"
)

// MultisetOptions extends BuildOptions with the multiset-only `permute`
// option spec.md §6 names.
type MultisetOptions struct {
	BuildOptions
	// Permute requests that columns be built in ascending-entropy order
	// (least-entropic first). Per spec.md §4.8, column CSFs are built
	// independently, so this has no effect on the persisted size; it is
	// a hook for a future codebook-sharing optimization and is recorded
	// for inspection only.
	Permute bool
}

// MultisetCSF wraps V = vector<T>: one independently-built CSF per
// column, indexed by original column position (spec.md §4.8).
type MultisetCSF[T comparable] struct {
	columns []*CSF[T]
	order   []int // build order actually used (identity unless Permute)
}

const multisetMetaFile = "multiset.json"

type multisetMeta struct {
	ColumnCount int   `json:"column_count"`
	Permute     bool  `json:"permute"`
	Order       []int `json:"order"`
}

// BuildMultiset transposes values (one row per key, L columns) and
// builds one CSF per column through the shared worker pool, per
// spec.md §4.8.
func BuildMultiset[T comparable](keys [][]byte, values [][]T, codec ValueCodec[T], opts MultisetOptions) (*MultisetCSF[T], error) {
	if len(keys) == 0 {
		return nil, ErrEmptyInput
	}
	if len(keys) != len(values) {
		return nil, ErrLengthMismatch
	}
	l := len(values[0])
	for _, row := range values {
		if len(row) != l {
			return nil, ErrLengthMismatch
		}
	}
	if l == 0 {
		return nil, ErrLengthMismatch
	}

	columns := make([][]T, l)
	for j := range columns {
		columns[j] = make([]T, len(values))
	}
	for i, row := range values {
		for j, v := range row {
			columns[j][i] = v
		}
	}

	order := make([]int, l)
	for j := range order {
		order[j] = j
	}
	if opts.Permute {
		entropy := make([]float64, l)
		for j, col := range columns {
			entropy[j] = empiricalEntropy(col)
		}
		sort.SliceStable(order, func(a, b int) bool { return entropy[order[a]] < entropy[order[b]] })
	}

	built := make([]*CSF[T], l)
	pool := worker.New(opts.Workers)
	err := pool.Run(l, func(slot int) error {
		j := order[slot]
		c, buildErr := Build(keys, columns[j], codec, opts.BuildOptions)
		if buildErr != nil {
			return fmt.Errorf("column %d: %w", j, buildErr)
		}
		built[j] = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &MultisetCSF[T]{columns: built, order: order}, nil
}

// empiricalEntropy returns the Shannon entropy, in bits, of the
// empirical distribution of vals.
func empiricalEntropy[T comparable](vals []T) float64 {
	if len(vals) == 0 {
		return 0
	}
	counts := make(map[T]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	n := float64(len(vals))
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Query returns the full vector of length L stored for key.
func (m *MultisetCSF[T]) Query(key []byte) []T {
	out := make([]T, len(m.columns))
	for j, c := range m.columns {
		out[j] = c.Query(key)
	}
	return out
}

// Len returns the vector length L.
func (m *MultisetCSF[T]) Len() int { return len(m.columns) }

// Column returns the built CSF for column j, for inspection
// (e.g. GetStats per column).
func (m *MultisetCSF[T]) Column(j int) *CSF[T] { return m.columns[j] }

// Save persists the multiset CSF as a directory of column_i.csf files
// (i strictly increasing from 0) plus a small JSON manifest recording
// the column count and build order, per spec.md §6's multiset layout.
func (m *MultisetCSF[T]) Save(dir string, opts MultisetOptions) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, c := range m.columns {
		path := filepath.Join(dir, fmt.Sprintf("column_%d.csf", i))
		if err := c.Save(path, opts.BuildOptions); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}

	meta := multisetMeta{ColumnCount: len(m.columns), Permute: opts.Permute, Order: m.order}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, multisetMetaFile), data, 0o644)
}

// LoadMultiset reads a multiset CSF back from a directory Save wrote,
// with the default LoadOptions for every column.
func LoadMultiset[T comparable](dir string, codec ValueCodec[T]) (*MultisetCSF[T], error) {
	return LoadMultisetWithOptions(dir, codec, LoadOptions{})
}

// LoadMultisetWithOptions is LoadMultiset with caller-controlled
// LoadOptions, applied uniformly to every column's Load.
func LoadMultisetWithOptions[T comparable](dir string, codec ValueCodec[T], opts LoadOptions) (*MultisetCSF[T], error) {
	data, err := os.ReadFile(filepath.Join(dir, multisetMetaFile))
	if err != nil {
		return nil, err
	}
	var meta multisetMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	columns := make([]*CSF[T], meta.ColumnCount)
	for i := range columns {
		path := filepath.Join(dir, fmt.Sprintf("column_%d.csf", i))
		c, err := LoadWithOptions(path, codec, opts)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		columns[i] = c
	}
	return &MultisetCSF[T]{columns: columns, order: meta.Order}, nil
}
