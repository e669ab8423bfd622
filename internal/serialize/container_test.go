package serialize

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caramel-csf/caramel/internal/cerrors"
)

func sampleContainer() *Container {
	return &Container{
		ValueType:  ValueU32,
		HasherSeed: 0xDEADBEEF,
		Buckets: []BucketDescriptor{
			{StartOffsetBits: 0, CodeLength: 4, Codebook: []byte{1, 2, 3}},
			{StartOffsetBits: 128, CodeLength: 6, Codebook: []byte{4, 5, 6, 7}},
		},
		SBits:         256,
		SBytes:        bytes.Repeat([]byte{0xAB}, 32),
		FilterKind:    1,
		FilterBlob:    []byte{9, 9, 9},
		HasMajority:   true,
		MajorityValue: []byte{42, 0, 0, 0},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	c := sampleContainer()
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, c))

	got, err := ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, c.ValueType, got.ValueType)
	require.Equal(t, c.HasherSeed, got.HasherSeed)
	require.Equal(t, c.Buckets, got.Buckets)
	require.Equal(t, c.SBits, got.SBits)
	require.Equal(t, c.SBytes, got.SBytes)
	require.Equal(t, c.FilterKind, got.FilterKind)
	require.Equal(t, c.FilterBlob, got.FilterBlob)
	require.Equal(t, c.HasMajority, got.HasMajority)
	require.Equal(t, c.MajorityValue, got.MajorityValue)
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	_, err := ReadFrom(&buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, cerrors.ErrDeserialization))
}

func TestReadRejectsBadVersion(t *testing.T) {
	c := sampleContainer()
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, c))
	data := buf.Bytes()
	data[4] = 0xFF // corrupt the version's high byte
	_, err := ReadFrom(bytes.NewReader(data))
	require.Error(t, err)
	require.True(t, errors.Is(err, cerrors.ErrDeserialization))
}

func TestWriteReadNoFilterNoMajority(t *testing.T) {
	c := &Container{
		ValueType:  ValueString,
		HasherSeed: 1,
		Buckets:    nil,
		SBits:      0,
		SBytes:     nil,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, c))
	got, err := ReadFrom(&buf)
	require.NoError(t, err)
	require.Empty(t, got.Buckets)
	require.False(t, got.HasMajority)
	require.Empty(t, got.FilterBlob)
}
