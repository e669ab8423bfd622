package caramel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultisetQueryReturnsFullVector(t *testing.T) {
	keys := keysN(1000)
	values := make([][]uint64, 1000)
	for i := range values {
		row := make([]uint64, 10)
		for j := range row {
			row[j] = uint64(i + j)
		}
		values[i] = row
	}

	m, err := BuildMultiset(keys, values, Uint64Codec(), MultisetOptions{
		BuildOptions: BuildOptions{HasherSeed: 0x1337},
	})
	require.NoError(t, err)
	require.Equal(t, 10, m.Len())

	got := m.Query([]byte("key37"))
	want := []uint64{37, 38, 39, 40, 41, 42, 43, 44, 45, 46}
	require.Equal(t, want, got)
}

func TestMultisetSaveLoadRoundTrip(t *testing.T) {
	keys := keysN(500)
	values := make([][]uint64, 500)
	for i := range values {
		values[i] = []uint64{uint64(i), uint64(i * 2), uint64(i % 7)}
	}

	opts := MultisetOptions{BuildOptions: BuildOptions{HasherSeed: 5}}
	m, err := BuildMultiset(keys, values, Uint64Codec(), opts)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "multiset")
	require.NoError(t, m.Save(dir, opts))

	loaded, err := LoadMultiset(dir, Uint64Codec())
	require.NoError(t, err)
	require.Equal(t, m.Len(), loaded.Len())

	for i, k := range keys {
		require.Equal(t, values[i], loaded.Query(k))
	}
}

func TestMultisetPermuteBuildsInEntropyOrder(t *testing.T) {
	keys := keysN(300)
	values := make([][]uint64, 300)
	for i := range values {
		// column 0: fully varied (high entropy); column 1: constant (zero entropy).
		values[i] = []uint64{uint64(i), 1}
	}

	m, err := BuildMultiset(keys, values, Uint64Codec(), MultisetOptions{
		BuildOptions: BuildOptions{HasherSeed: 3},
		Permute:      true,
	})
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, values[i], m.Query(k))
	}
	require.Equal(t, []int{1, 0}, m.order)
}

func TestBuildMultisetRejectsRaggedRows(t *testing.T) {
	keys := keysN(5)
	values := [][]uint64{{1, 2}, {1, 2}, {1, 2}, {1, 2}, {1}}

	_, err := BuildMultiset(keys, values, Uint64Codec(), MultisetOptions{})
	require.ErrorIs(t, err, ErrLengthMismatch)
}
