package disk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/seedcore-io/torrentd/bitfield"
	"github.com/seedcore-io/torrentd/metainfo"
	"github.com/stretchr/testify/require"
)

func singleFileTorrent() *metainfo.Torrent {
	return &metainfo.Torrent{
		Name:        "test",
		PieceLength: 10,
		TotalLength: 20,
		Files:       []metainfo.File{{Path: []string{"test"}, Length: 20, Offset: 0}},
	}
}

func multiFileTorrent() *metainfo.Torrent {
	return &metainfo.Torrent{
		Name:        "dir",
		PieceLength: 10,
		TotalLength: 20,
		Files: []metainfo.File{
			{Path: []string{"dir", "a.txt"}, Length: 6, Offset: 0},
			{Path: []string{"dir", "b.txt"}, Length: 14, Offset: 6},
		},
	}
}

func TestAllocateAndWriteReadSingleFile(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()

	m := New(root, singleFileTorrent())
	require.NoError(m.Allocate())

	data := []byte("0123456789")
	require.NoError(m.WritePiece(0, 0, data))

	got, err := m.ReadPiece(0, 0, len(data))
	require.NoError(err)
	require.Equal(data, got)

	require.True(m.Exists())
}

func TestWritePieceSpanningMultipleFiles(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()

	tor := multiFileTorrent()
	m := New(root, tor)
	require.NoError(m.Allocate())

	// Piece 0 spans bytes [0,10): first 6 bytes belong to a.txt, next 4 to b.txt.
	data := []byte("AAAAAABBBB")
	require.NoError(m.WritePiece(0, 0, data))

	aBytes, err := os.ReadFile(filepath.Join(root, "dir", "a.txt"))
	require.NoError(err)
	require.Equal([]byte("AAAAAA"), aBytes)

	bBytes, err := os.ReadFile(filepath.Join(root, "dir", "b.txt"))
	require.NoError(err)
	require.Equal(byte('B'), bBytes[0])
	require.Equal(byte('B'), bBytes[3])
}

func TestDeleteAll(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()

	m := New(root, singleFileTorrent())
	require.NoError(m.Allocate())
	require.True(m.Exists())
	require.NoError(m.DeleteAll())
	require.False(m.Exists())
}

func TestFileProgress(t *testing.T) {
	require := require.New(t)
	root := t.TempDir()

	tor := multiFileTorrent()
	m := New(root, tor)
	require.NoError(m.Allocate())

	bf := bitfield.New(2)
	bf.Set(0) // covers a.txt fully and the first 4 bytes of b.txt

	progress := m.FileProgress(bf)
	require.Len(progress, 2)
	require.Equal(1.0, progress[0])
	require.InDelta(4.0/14.0, progress[1], 0.0001)
}
