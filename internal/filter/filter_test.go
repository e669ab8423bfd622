package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caramel-csf/caramel/internal/hasher"
)

func keysN(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("filter-key-%d", i))
	}
	return keys
}

func TestBloomNoFalseNegatives(t *testing.T) {
	keys := keysN(2000)
	bf := NewBloomFilter(len(keys), 0.01)
	h := hasher.New(0)
	for _, k := range keys {
		bf.Add(h.Hash128(k))
	}
	for _, k := range keys {
		require.True(t, bf.MightContainHash(h.Hash128(k)))
	}
}

func TestBloomMarshalRoundTrip(t *testing.T) {
	keys := keysN(500)
	bf := NewBloomFilter(len(keys), 0.02)
	h := hasher.New(1)
	for _, k := range keys {
		bf.Add(h.Hash128(k))
	}
	data := bf.Marshal()
	got, err := UnmarshalBloomFilter(data)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, got.MightContainHash(h.Hash128(k)))
	}
}

func TestXorFilterNoFalseNegatives(t *testing.T) {
	keys := keysN(3000)
	f, err := BuildXorFilter(keys, 0)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, f.MightContain(k))
	}

	falsePositives := 0
	for i := 0; i < 5000; i++ {
		probe := []byte(fmt.Sprintf("absent-%d", i))
		if f.MightContain(probe) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, 200) // << 5000, roughly 1/256 expected
}

func TestXorFilterMarshalRoundTrip(t *testing.T) {
	keys := keysN(1000)
	f, err := BuildXorFilter(keys, 0)
	require.NoError(t, err)
	data := f.Marshal()
	got, err := UnmarshalXorFilter(data)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, got.MightContain(k))
	}
}

func TestXorFilterEmpty(t *testing.T) {
	f, err := BuildXorFilter(nil, 0)
	require.NoError(t, err)
	require.False(t, f.MightContain([]byte("anything")))
}

func TestXorFilterWiderFingerprintLowersFalsePositives(t *testing.T) {
	keys := keysN(3000)
	narrow, err := BuildXorFilter(keys, 6)
	require.NoError(t, err)
	wide, err := BuildXorFilter(keys, 16)
	require.NoError(t, err)

	for _, k := range keys {
		require.True(t, narrow.MightContain(k))
		require.True(t, wide.MightContain(k))
	}

	countFP := func(f *XorFilter) int {
		n := 0
		for i := 0; i < 20000; i++ {
			if f.MightContain([]byte(fmt.Sprintf("absent-%d", i))) {
				n++
			}
		}
		return n
	}
	require.Less(t, countFP(wide), countFP(narrow))
}

func TestBinaryFuseNoFalseNegatives(t *testing.T) {
	keys := keysN(3000)
	f, err := BuildBinaryFuseFilter(keys, 0)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, f.MightContain(k))
	}
}

func TestBinaryFuseMarshalRoundTrip(t *testing.T) {
	keys := keysN(1200)
	f, err := BuildBinaryFuseFilter(keys, 0)
	require.NoError(t, err)
	data := f.Marshal()
	got, err := UnmarshalBinaryFuseFilter(data)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, got.MightContain(k))
	}
}

func TestBinaryFuseCustomFingerprintWidth(t *testing.T) {
	keys := keysN(1200)
	f, err := BuildBinaryFuseFilter(keys, 12)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, f.MightContain(k))
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "bloom", KindBloom.String())
	require.Equal(t, "xor", KindXor.String())
	require.Equal(t, "binaryfuse", KindBinaryFuse.String())
	require.Equal(t, "none", KindNone.String())
}
