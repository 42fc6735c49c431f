package selector

import (
	"testing"

	"github.com/seedcore-io/torrentd/bitfield"
	"github.com/stretchr/testify/require"
)

func bf(n int, set ...int) *bitfield.Bitfield {
	b := bitfield.New(n)
	for _, i := range set {
		b.Set(i)
	}
	return b
}

func TestRarestFirstPicksLowestAvailability(t *testing.T) {
	require := require.New(t)

	ours := bf(4)
	peer := bf(4, 0, 1, 2, 3)
	availability := map[int]int{0: 5, 1: 1, 2: 3, 3: 2}

	s := New(RarestFirst, 1)
	piece, ok := s.Select(ours, peer, nil, availability, nil, false)
	require.True(ok)
	require.Equal(1, piece)
}

func TestSequentialPicksLowestIndex(t *testing.T) {
	require := require.New(t)

	ours := bf(4)
	peer := bf(4, 3, 1, 2)
	s := New(Sequential, 1)
	piece, ok := s.Select(ours, peer, nil, nil, nil, false)
	require.True(ok)
	require.Equal(1, piece)
}

func TestSelectExcludesInProgressUnlessEndgame(t *testing.T) {
	require := require.New(t)

	ours := bf(4)
	peer := bf(4, 0, 1)
	inProgress := map[int]bool{0: true}

	s := New(Sequential, 1)
	piece, ok := s.Select(ours, peer, inProgress, nil, nil, false)
	require.True(ok)
	require.Equal(1, piece)

	piece, ok = s.Select(ours, peer, inProgress, nil, nil, true)
	require.True(ok)
	require.Equal(0, piece)
}

func TestSelectExcludesOwnedAndSkippedPieces(t *testing.T) {
	require := require.New(t)

	ours := bf(4, 0)
	peer := bf(4, 0, 1, 2)
	priorities := map[int]Priority{1: Skip}

	s := New(Sequential, 1)
	piece, ok := s.Select(ours, peer, nil, nil, priorities, false)
	require.True(ok)
	require.Equal(2, piece)
}

func TestSelectReturnsFalseWhenNoCandidates(t *testing.T) {
	ours := bf(2, 0, 1)
	peer := bf(2, 0, 1)
	s := New(RarestFirst, 1)
	_, ok := s.Select(ours, peer, nil, nil, nil, false)
	require.False(t, ok)
}

func TestShouldEndgame(t *testing.T) {
	require := require.New(t)
	require.True(ShouldEndgame(5, 100))
	require.False(ShouldEndgame(20, 100))
	require.True(ShouldEndgame(4, 100))
}

func TestHigherPriorityPreferredOverRarity(t *testing.T) {
	require := require.New(t)

	ours := bf(3)
	peer := bf(3, 0, 1, 2)
	availability := map[int]int{0: 1, 1: 5, 2: 5}
	priorities := map[int]Priority{1: High}

	s := New(RarestFirst, 1)
	piece, ok := s.Select(ours, peer, nil, availability, priorities, false)
	require.True(ok)
	require.Equal(1, piece)
}
