package gf2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmpty(t *testing.T) {
	s := New(10, 4, 0)
	require.Equal(t, 0, s.NumRows())
	require.EqualValues(t, 40, s.BitWidth())
}

func TestAddRowAndRow(t *testing.T) {
	s := New(100, 5, 3)
	s.AddRow(1, 2, 3, 0x1F)
	s.AddRow(4, 5, 6, 0x01)
	require.Equal(t, 2, s.NumRows())

	h0, h1, h2, rhs := s.Row(0)
	require.EqualValues(t, 1, h0)
	require.EqualValues(t, 2, h1)
	require.EqualValues(t, 3, h2)
	require.EqualValues(t, 0x1F, rhs)

	h0, h1, h2, rhs = s.Row(1)
	require.EqualValues(t, 4, h0)
	require.EqualValues(t, 5, h1)
	require.EqualValues(t, 6, h2)
	require.EqualValues(t, 0x01, rhs)
}

func TestReset(t *testing.T) {
	s := New(10, 4, 2)
	s.AddRow(1, 2, 3, 1)
	s.AddRow(4, 5, 6, 2)
	require.Equal(t, 2, s.NumRows())

	s.Reset()
	require.Equal(t, 0, s.NumRows())

	s.AddRow(7, 8, 9, 3)
	require.Equal(t, 1, s.NumRows())
	h0, h1, h2, rhs := s.Row(0)
	require.EqualValues(t, 7, h0)
	require.EqualValues(t, 8, h1)
	require.EqualValues(t, 9, h2)
	require.EqualValues(t, 3, rhs)
}

func TestBitWidth(t *testing.T) {
	s := New(37, 6, 0)
	require.EqualValues(t, 222, s.BitWidth())
}
