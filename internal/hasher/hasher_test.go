package hasher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	h := New(0x1337)
	a := h.Hash128([]byte("key0"))
	b := New(0x1337).Hash128([]byte("key0"))
	require.True(t, a.Equal(b))
}

func TestReseedIndependent(t *testing.T) {
	a := New(1).Hash128([]byte("same-key"))
	b := New(2).Hash128([]byte("same-key"))
	require.False(t, a.Equal(b))
}

func TestEndpointsPairwiseDistinct(t *testing.T) {
	h := New(0xC0FFEE)
	const m = 3000
	for i := 0; i < 5000; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i >> 16)}
		e := h.Endpoints(key, m)
		require.NotEqual(t, e.H0, e.H1)
		require.NotEqual(t, e.H1, e.H2)
		require.NotEqual(t, e.H0, e.H2)
		require.Less(t, e.H0, uint64(m))
		require.Less(t, e.H1, uint64(m))
		require.Less(t, e.H2, uint64(m))
	}
}

func TestBucketTagDeterministic(t *testing.T) {
	h := New(42)
	require.Equal(t, h.BucketTag([]byte("abc")), h.BucketTag([]byte("abc")))
	require.NotEqual(t, h.BucketTag([]byte("abc")), h.BucketTag([]byte("abd")))
}

// TestSharedHasherRepeatable covers the cached-digest reuse in Hash128
// and BucketTag: calling either repeatedly, or interleaved with other
// keys, on one shared *Hasher must reproduce the same per-key result
// every time, proving the cached keyed state isn't mutated by a call.
func TestSharedHasherRepeatable(t *testing.T) {
	h := New(99)
	a1 := h.Hash128([]byte("k1"))
	_ = h.Hash128([]byte("k2"))
	a2 := h.Hash128([]byte("k1"))
	require.True(t, a1.Equal(a2))

	t1 := h.BucketTag([]byte("k1"))
	_ = h.BucketTag([]byte("k2"))
	t2 := h.BucketTag([]byte("k1"))
	require.Equal(t, t1, t2)
}
