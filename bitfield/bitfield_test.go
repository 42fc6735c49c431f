package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetTestClear(t *testing.T) {
	require := require.New(t)

	bf := New(10)
	require.False(bf.Test(3))
	bf.Set(3)
	require.True(bf.Test(3))
	bf.Clear(3)
	require.False(bf.Test(3))
}

func TestBytesMSBFirst(t *testing.T) {
	require := require.New(t)

	bf := New(9)
	bf.Set(0) // MSB of byte 0
	bf.Set(8) // MSB of byte 1
	b := bf.Bytes()
	require.Len(b, 2)
	require.Equal(byte(0x80), b[0])
	require.Equal(byte(0x80), b[1])
}

func TestFromBytesRoundTrip(t *testing.T) {
	require := require.New(t)

	bf := New(20)
	bf.Set(0)
	bf.Set(19)
	bf.Set(7)

	bf2, err := FromBytes(bf.Bytes(), 20)
	require.NoError(err)
	require.Equal(bf.Bytes(), bf2.Bytes())
	require.True(bf2.Test(0))
	require.True(bf2.Test(19))
	require.True(bf2.Test(7))
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{0x00}, 20)
	require.Error(t, err)
}

func TestCompletionRatioAndFull(t *testing.T) {
	require := require.New(t)

	bf := New(4)
	require.Zero(bf.CompletionRatio())
	bf.Set(0)
	bf.Set(1)
	require.Equal(0.5, bf.CompletionRatio())
	bf.Set(2)
	bf.Set(3)
	require.True(bf.Full())
}

func TestPiecesToRequest(t *testing.T) {
	require := require.New(t)

	ours := New(5)
	ours.Set(0)
	peer := New(5)
	peer.Set(0)
	peer.Set(1)
	peer.Set(3)

	require.Equal([]int{1, 3}, PiecesToRequest(ours, peer))
	require.True(HasAny(ours, peer))
}
