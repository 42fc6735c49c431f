package core

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoHashFromBytesMatchesSHA1(t *testing.T) {
	require := require.New(t)

	b := []byte("d4:name4:teste")
	h := NewInfoHashFromBytes(b)
	require.Len(h.Bytes(), InfoHashLen)
	require.Equal(InfoHash(sha1.Sum(b)), h)

	h2, err := NewInfoHashFromHex(h.Hex())
	require.NoError(err)
	require.Equal(h, h2)
}

func TestInfoHashFromHexRejectsBadLength(t *testing.T) {
	require := require.New(t)
	_, err := NewInfoHashFromHex("abcd")
	require.Error(err)
}

func TestGeneratePeerIDHasClientPrefix(t *testing.T) {
	require := require.New(t)

	id, err := GeneratePeerID()
	require.NoError(err)
	require.Equal(clientPrefix, string(id[:len(clientPrefix)]))
	for _, b := range id[len(clientPrefix):] {
		require.True(b >= printableASCIILow && b <= printableASCIIHigh)
	}
}

func TestPeerIDDistinctAcrossCalls(t *testing.T) {
	require := require.New(t)

	id1, err := GeneratePeerID()
	require.NoError(err)
	id2, err := GeneratePeerID()
	require.NoError(err)
	require.NotEqual(id1, id2)
}

func TestHashPiece(t *testing.T) {
	require := require.New(t)

	data := []byte("hello world")
	h := HashPiece(data)
	require.Len(h[:], PieceHashLen)
	require.Equal(h, HashPiece(data))
}
