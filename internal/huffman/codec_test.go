package huffman

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleSymbolDegenerate(t *testing.T) {
	values := make([]int, 1000)
	for i := range values {
		values[i] = 5
	}
	cb, err := Build(values)
	require.NoError(t, err)
	require.EqualValues(t, 0, cb.CodeLength)
	require.Equal(t, 5, cb.Decode(0))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// skewed distribution: a handful of common symbols, a long tail.
	values := make([]int, 0, 5000)
	for i := 0; i < 4000; i++ {
		values = append(values, rng.Intn(4))
	}
	for i := 0; i < 1000; i++ {
		values = append(values, 100+rng.Intn(200))
	}

	cb, err := Build(values)
	require.NoError(t, err)

	for _, v := range values {
		code, ok := cb.Encode(v)
		require.True(t, ok)
		require.LessOrEqual(t, int(code.Length), int(cb.CodeLength))
		got := cb.Decode(code.Bits)
		require.Equal(t, v, got)
	}
}

func TestPrefixFreeKraftInequality(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	values := make([]int, 3000)
	for i := range values {
		values[i] = rng.Intn(50)
	}
	cb, err := Build(values)
	require.NoError(t, err)

	var sum float64
	for _, l := range cb.Lengths() {
		sum += 1.0 / float64(uint64(1)<<l)
	}
	require.LessOrEqual(t, sum, 1.0+1e-9)
}

func TestLengthLimitRespected(t *testing.T) {
	// Heavily skewed (roughly Fibonacci-like) frequencies push a naive
	// Huffman tree past MaxCodeLength; the package-merge fallback must
	// still produce a valid, length-bounded code.
	freq := []uint64{1}
	a, b := uint64(1), uint64(1)
	for len(freq) < 40 {
		freq = append(freq, b)
		a, b = b, a+b
	}
	values := make([]int, 0)
	for sym, f := range freq {
		for i := uint64(0); i < f; i++ {
			values = append(values, sym)
		}
	}

	cb, err := Build(values)
	require.NoError(t, err)
	require.LessOrEqual(t, int(cb.CodeLength), MaxCodeLength)
	for _, l := range cb.Lengths() {
		require.LessOrEqual(t, int(l), MaxCodeLength)
		require.GreaterOrEqual(t, int(l), 1)
	}
}
