package caramel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func keysN(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key%d", i))
	}
	return keys
}

func TestBuildQueryBasicLookup(t *testing.T) {
	keys := keysN(1000)
	values := make([]uint64, 1000)
	for i := range values {
		values[i] = uint64(i)
	}

	csf, err := Build(keys, values, Uint64Codec(), BuildOptions{HasherSeed: 0x1337})
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, values[i], csf.Query(k))
	}
}

func TestBuildQueryDegenerateSingleSymbol(t *testing.T) {
	keys := keysN(1000)
	values := make([]uint64, 1000)
	for i := range values {
		values[i] = 5
	}

	csf, err := Build(keys, values, Uint64Codec(), BuildOptions{HasherSeed: 0x1337})
	require.NoError(t, err)

	for _, k := range keys {
		require.Equal(t, uint64(5), csf.Query(k))
	}
	require.Less(t, csf.GetStats().TotalBytes, 1000)
}

func TestBuildDetectsDuplicateKeyCollision(t *testing.T) {
	keys := [][]byte{[]byte("1"), []byte("2"), []byte("3"), []byte("4"), []byte("4")}
	values := []uint64{1, 2, 3, 4, 5}

	_, err := Build(keys, values, Uint64Codec(), BuildOptions{HasherSeed: 0x1337, BucketSize: 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrKeyCollision))
}

func TestPrefilterShrinksFileAndStaysCorrect(t *testing.T) {
	n := 10000
	keys := keysN(n)
	values := make([]uint64, n)
	for i := range values {
		if i < n*8/10 {
			values[i] = 42
		} else {
			values[i] = uint64(1000 + i)
		}
	}

	withFilter, err := Build(keys, values, Uint64Codec(), BuildOptions{
		HasherSeed: 0x1337,
		Prefilter:  PrefilterSpec{Kind: PrefilterBloom, FPRate: 0.01},
	})
	require.NoError(t, err)
	withoutFilter, err := Build(keys, values, Uint64Codec(), BuildOptions{HasherSeed: 0x1337})
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, values[i], withFilter.Query(k))
		require.Equal(t, values[i], withoutFilter.Query(k))
	}
	require.Less(t, withFilter.GetStats().TotalBytes, withoutFilter.GetStats().TotalBytes)
}

func TestPrefilterFingerprintBitsTunesXorFilterSize(t *testing.T) {
	n := 10000
	keys := keysN(n)
	values := make([]uint64, n)
	for i := range values {
		if i < n*9/10 {
			values[i] = 42
		} else {
			values[i] = uint64(1000 + i)
		}
	}

	narrow, err := Build(keys, values, Uint64Codec(), BuildOptions{
		HasherSeed: 0x1337,
		Prefilter:  PrefilterSpec{Kind: PrefilterXor, FingerprintBits: 4},
	})
	require.NoError(t, err)
	wide, err := Build(keys, values, Uint64Codec(), BuildOptions{
		HasherSeed: 0x1337,
		Prefilter:  PrefilterSpec{Kind: PrefilterXor, FingerprintBits: 16},
	})
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, values[i], narrow.Query(k))
		require.Equal(t, values[i], wide.Query(k))
	}
	require.Less(t, narrow.GetStats().TotalBytes, wide.GetStats().TotalBytes)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	keys := keysN(2000)
	values := make([]uint64, 2000)
	for i := range values {
		values[i] = uint64(i % 17)
	}

	opts := BuildOptions{HasherSeed: 0x1337}
	csf, err := Build(keys, values, Uint64Codec(), opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roundtrip.csf")
	require.NoError(t, csf.Save(path, opts))

	loaded, err := Load(path, Uint64Codec())
	require.NoError(t, err)

	for i, k := range keys {
		require.Equal(t, values[i], loaded.Query(k))
	}
}

func TestLoadWithOptionsMmap(t *testing.T) {
	keys := keysN(2000)
	values := make([]uint64, 2000)
	for i := range values {
		values[i] = uint64(i % 17)
	}

	opts := BuildOptions{HasherSeed: 0x1337, Prefilter: PrefilterSpec{Kind: PrefilterXor, FingerprintBits: 10}}
	csf, err := Build(keys, values, Uint64Codec(), opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mmap.csf")
	require.NoError(t, csf.Save(path, opts))

	loaded, err := LoadWithOptions(path, Uint64Codec(), LoadOptions{Mmap: true})
	require.NoError(t, err)
	for i, k := range keys {
		require.Equal(t, values[i], loaded.Query(k))
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	keys := keysN(500)
	values := make([]uint64, 500)
	for i := range values {
		values[i] = uint64(i % 5)
	}

	opts := BuildOptions{HasherSeed: 42}
	csf, err := Build(keys, values, Uint64Codec(), opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "idempotent.csf")
	require.NoError(t, csf.Save(path, opts))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := Load(path, Uint64Codec())
	require.NoError(t, err)
	require.NoError(t, loaded.Save(path, opts))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestBuildDeterministicAcrossRuns(t *testing.T) {
	keys := keysN(3000)
	values := make([]uint64, 3000)
	for i := range values {
		values[i] = uint64(i % 31)
	}

	opts := BuildOptions{HasherSeed: 99}
	a, err := Build(keys, values, Uint64Codec(), opts)
	require.NoError(t, err)
	b, err := Build(keys, values, Uint64Codec(), opts)
	require.NoError(t, err)

	pathA := filepath.Join(t.TempDir(), "a.csf")
	pathB := filepath.Join(t.TempDir(), "b.csf")
	require.NoError(t, a.Save(pathA, opts))
	require.NoError(t, b.Save(pathB, opts))

	bytesA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	bytesB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	require.Equal(t, bytesA, bytesB)
}

func TestQueryOutOfSetKeyDoesNotPanic(t *testing.T) {
	keys := keysN(200)
	values := make([]uint64, 200)
	for i := range values {
		values[i] = uint64(i)
	}

	csf, err := Build(keys, values, Uint64Codec(), BuildOptions{HasherSeed: 7})
	require.NoError(t, err)
	require.NotPanics(t, func() { csf.Query([]byte("never-inserted")) })
}

func TestInferCodecDispatchesOnValueType(t *testing.T) {
	c, err := InferCodec([]any{uint64(1), uint64(2), uint64(3)}, 0)
	require.NoError(t, err)
	_, ok := c.(ValueCodec[uint64])
	require.True(t, ok)

	_, err = InferCodec([]any{uint64(1), "mismatched"}, 0)
	require.ErrorIs(t, err, ErrUnsupportedValueType)

	_, err = InferCodec([]any{}, 0)
	require.ErrorIs(t, err, ErrEmptyInput)
}
