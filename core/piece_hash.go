package core

import "crypto/sha1"

// PieceHashLen is the length in bytes of a piece digest.
const PieceHashLen = 20

// PieceHash is the SHA1 digest of a piece's verified bytes.
type PieceHash [PieceHashLen]byte

// HashPiece computes the digest of b, the full contents of one piece.
func HashPiece(b []byte) PieceHash {
	return PieceHash(sha1.Sum(b))
}

// NewPieceHash builds a PieceHash from a raw 20-byte slice, as found in a
// metainfo "pieces" field.
func NewPieceHash(b []byte) PieceHash {
	var h PieceHash
	copy(h[:], b)
	return h
}
