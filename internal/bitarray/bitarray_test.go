package bitarray

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSetFlip(t *testing.T) {
	b := New(200)
	b.Set(5, 1)
	require.Equal(t, 1, b.Get(5))
	b.Flip(5)
	require.Equal(t, 0, b.Get(5))
	b.Flip(199)
	require.Equal(t, 1, b.Get(199))
}

func TestOutOfRangePanics(t *testing.T) {
	b := New(10)
	require.Panics(t, func() { b.Get(10) })
	require.Panics(t, func() { b.Set(100, 1) })
}

func TestReadWriteBitsAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n = 2000
	b := New(n)

	// reference: a plain []int bit vector
	ref := make([]int, n)
	for i := range ref {
		ref[i] = rng.Intn(2)
		b.Set(uint64(i), ref[i])
	}

	for trial := 0; trial < 5000; trial++ {
		w := uint64(1 + rng.Intn(64))
		if w > n {
			w = n
		}
		i := uint64(rng.Intn(int(n - w + 1)))

		got, err := b.ReadBits(i, w)
		require.NoError(t, err)

		var want uint64
		for k := uint64(0); k < w; k++ {
			if ref[i+k] == 1 {
				want |= uint64(1) << k
			}
		}
		require.Equalf(t, want, got, "ReadBits(%d,%d)", i, w)
	}
}

func TestWriteBitsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 500
	b := New(n)

	for trial := 0; trial < 2000; trial++ {
		w := uint64(1 + rng.Intn(64))
		if w > n {
			w = n
		}
		i := uint64(rng.Intn(int(n - w + 1)))
		var value uint64
		if w == 64 {
			value = rng.Uint64()
		} else {
			value = rng.Uint64() & ((uint64(1) << w) - 1)
		}

		require.NoError(t, b.WriteBits(i, w, value))
		got, err := b.ReadBits(i, w)
		require.NoError(t, err)
		require.Equal(t, value, got)
	}
}

func TestReadBitsInvalidRange(t *testing.T) {
	b := New(64)
	_, err := b.ReadBits(60, 10)
	require.ErrorIs(t, err, ErrInvalidOffset)
	_, err = b.ReadBits(0, 0)
	require.ErrorIs(t, err, ErrInvalidOffset)
	_, err = b.ReadBits(0, 65)
	require.ErrorIs(t, err, ErrInvalidOffset)
}

func TestXorRange(t *testing.T) {
	a := New(128)
	c := New(128)
	for i := uint64(0); i < 128; i++ {
		a.Set(i, int(i%2))
		c.Set(i, int((i+1)%2))
	}
	require.NoError(t, a.XorRange(0, c, 0, 128))
	for i := uint64(0); i < 128; i++ {
		require.Equal(t, 1, a.Get(i))
	}
}

func TestFromWordsPreservesLength(t *testing.T) {
	b := New(130)
	b.WriteBits(64, 64, 0xDEADBEEFCAFEBABE)
	words := append([]uint64(nil), b.Words()...)

	b2 := FromWords(words, 130)
	got, err := b2.ReadBits(64, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(0xDEADBEEFCAFEBABE), got)
}

func TestPopCount(t *testing.T) {
	b := New(128)
	for i := uint64(0); i < 128; i += 2 {
		b.Set(i, 1)
	}
	require.Equal(t, uint64(64), b.PopCount())
}
