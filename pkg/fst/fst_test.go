package fst

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/hansbonini/gcmtools/pkg/gcm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTable builds:
//
//	opening.bnr
//	audio/
//	  bgm.hps
//	  se/
//	    hit.ssm
//	  voice.hps
//	boot.bin
func sampleTable(t *testing.T) *Table {
	t.Helper()
	b := NewBuilder()
	b.AddFile("opening.bnr", 0x10000, 0x1960)
	b.BeginDir("audio")
	b.AddFile("bgm.hps", 0x12000, 0x400)
	b.BeginDir("se")
	b.AddFile("hit.ssm", 0x12400, 0x24)
	b.EndDir()
	b.AddFile("voice.hps", 0x12428, 0x10)
	b.EndDir()
	b.AddFile("boot.bin", 0x12438, 0x8)
	table, err := b.Table()
	require.NoError(t, err)
	return table
}

func TestBuilder_Ranges(t *testing.T) {
	table := sampleTable(t)
	require.Equal(t, 8, table.Len())

	audio := table.Entries[2]
	assert.True(t, audio.IsDir())
	assert.Equal(t, 0, audio.Parent)
	assert.Equal(t, 7, audio.Next)

	se := table.Entries[4]
	assert.Equal(t, 2, se.Parent)
	assert.Equal(t, 6, se.Next)

	assert.Equal(t, 4, table.Entries[5].Parent)
	assert.Equal(t, 2, table.Entries[6].Parent)
	assert.Equal(t, 0, table.Entries[7].Parent)
}

func TestBuilder_OpenDirectory(t *testing.T) {
	b := NewBuilder()
	b.BeginDir("dangling")
	_, err := b.Table()
	assert.True(t, errors.Is(err, gcm.ErrMalformedFST))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	table := sampleTable(t)
	data, err := table.Encode()
	require.NoError(t, err)
	assert.Len(t, data, int(table.EncodedSize()))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, table.Entries, decoded.Entries)

	again, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestEncode_WireFormat(t *testing.T) {
	b := NewBuilder()
	b.BeginDir("d")
	b.AddFile("f", 0x8000, 3)
	b.EndDir()
	table, err := b.Table()
	require.NoError(t, err)

	data, err := table.Encode()
	require.NoError(t, err)

	want := []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x03,
		'd', 0x00, 'f', 0x00,
	}
	assert.Equal(t, want, data)
}

func TestDecode_RepeatedNamesAcrossParents(t *testing.T) {
	b := NewBuilder()
	b.BeginDir("a")
	b.AddFile("data.bin", 0x100, 1)
	b.EndDir()
	b.BeginDir("b")
	b.AddFile("data.bin", 0x104, 1)
	b.EndDir()
	table, err := b.Table()
	require.NoError(t, err)

	data, err := table.Encode()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	i, ok := decoded.Lookup("b/data.bin")
	require.True(t, ok)
	assert.Equal(t, uint32(0x104), decoded.Entries[i].Offset)
}

func TestNavigation(t *testing.T) {
	table := sampleTable(t)

	assert.Equal(t, []int{1, 2, 7}, table.Children(0))
	assert.Equal(t, []int{3, 4, 6}, table.Children(2))
	assert.Equal(t, []int{5}, table.Children(4))
	assert.Nil(t, table.Children(1))

	assert.Equal(t, "", table.FullPath(0))
	assert.Equal(t, "audio/se/hit.ssm", table.FullPath(5))
	assert.Equal(t, "boot.bin", table.FullPath(7))

	i, ok := table.Lookup("/audio/se/hit.ssm")
	require.True(t, ok)
	assert.Equal(t, 5, i)

	i, ok = table.Lookup("/")
	require.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = table.Lookup("audio/missing")
	assert.False(t, ok)
	_, ok = table.Lookup("opening.bnr/child")
	assert.False(t, ok)

	assert.Equal(t, []int{1, 3, 5, 6, 7}, table.Files())
}

func TestWalk(t *testing.T) {
	table := sampleTable(t)
	var paths []string
	require.NoError(t, table.Walk(func(i int, path string, e *Entry) error {
		paths = append(paths, path)
		return nil
	}))
	assert.Equal(t, []string{
		"opening.bnr", "audio", "audio/bgm.hps", "audio/se",
		"audio/se/hit.ssm", "audio/voice.hps", "boot.bin",
	}, paths)

	stop := errors.New("stop")
	err := table.Walk(func(i int, path string, e *Entry) error {
		if i == 3 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
}

func TestDecode_Truncated(t *testing.T) {
	valid, err := sampleTable(t).Encode()
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func(d []byte) []byte { return d[:0] }},
		{"count past end", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[8:], 1000)
			return d
		}},
		{"zero count", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[8:], 0)
			return d
		}},
		{"name offset past table", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[EntrySize:], 0x00FFFFFF)
			return d
		}},
		{"unterminated name", func(d []byte) []byte { return d[:len(d)-1] }},
		{"dir range past count", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[2*EntrySize+8:], 99)
			return d
		}},
		{"dir range before self", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[2*EntrySize+8:], 2)
			return d
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.mutate(append([]byte(nil), valid...))
			_, err := Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gcm.ErrTruncatedFST), "got %v", err)
			var fe *gcm.FormatError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid, err := sampleTable(t).Encode()
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func([]byte)
	}{
		{"root is a file", func(d []byte) { d[0] = 0 }},
		{"unknown flags", func(d []byte) { d[EntrySize] = 7 }},
		{"parent is later entry", func(d []byte) { binary.BigEndian.PutUint32(d[4*EntrySize+4:], 5) }},
		{"parent disagrees with nesting", func(d []byte) { binary.BigEndian.PutUint32(d[4*EntrySize+4:], 0) }},
		{"subdir escapes parent", func(d []byte) { binary.BigEndian.PutUint32(d[4*EntrySize+8:], 8) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := append([]byte(nil), valid...)
			tc.mutate(data)
			_, err := Decode(data)
			assert.True(t, errors.Is(err, gcm.ErrMalformedFST), "got %v", err)
		})
	}
}

// renameInStrings overwrites the first stored name equal to from. The
// replacement may be shorter and is padded with NULs.
func renameInStrings(t *testing.T, data []byte, from, to string) {
	t.Helper()
	require.LessOrEqual(t, len(to), len(from))
	count := binary.BigEndian.Uint32(data[8:12])
	strs := data[count*EntrySize:]
	i := 0
	for i < len(strs) && !bytes.HasPrefix(strs[i:], []byte(from+"\x00")) {
		i += bytes.IndexByte(strs[i:], 0) + 1
	}
	require.Less(t, i, len(strs), "name %q not stored", from)
	n := copy(strs[i:], to)
	for ; n < len(from); n++ {
		strs[i+n] = 0
	}
}

func TestDecode_RejectsUnsafeNames(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{"parent directory", "se", ".."},
		{"current directory", "se", "."},
		{"empty", "boot.bin", ""},
		{"separator", "hit.ssm", "../x"},
		{"absolute", "voice.hps", "/etc/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := sampleTable(t).Encode()
			require.NoError(t, err)
			renameInStrings(t, data, tt.from, tt.to)

			_, err = Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gcm.ErrMalformedFST), "got %v", err)
			var fe *gcm.FormatError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestDecode_RejectsRepeatedSiblings(t *testing.T) {
	b := NewBuilder()
	b.AddFile("aa", 0x100, 4)
	b.AddFile("bb", 0x104, 4)
	b.BeginDir("dir")
	b.AddFile("cc", 0x108, 4)
	b.BeginDir("dd")
	b.EndDir()
	b.EndDir()
	table, err := b.Table()
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to string
	}{
		{"files at root", "bb", "aa"},
		{"file and directory", "dd", "cc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := table.Encode()
			require.NoError(t, err)
			renameInStrings(t, data, tt.from, tt.to)

			_, err = Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gcm.ErrMalformedFST), "got %v", err)
			assert.Contains(t, err.Error(), fmt.Sprintf("%q", tt.to))
		})
	}

	// the same name under another directory is fine
	data, err := table.Encode()
	require.NoError(t, err)
	renameInStrings(t, data, "cc", "aa")
	decoded, err := Decode(data)
	require.NoError(t, err)
	_, ok := decoded.Lookup("dir/aa")
	assert.True(t, ok)
}

func TestValidate_RepeatedSiblings(t *testing.T) {
	table := &Table{Entries: []Entry{
		{Kind: DirEntry, Next: 3},
		{Kind: FileEntry, Name: "a.bin"},
		{Kind: FileEntry, Name: "a.bin"},
	}}
	_, err := table.Encode()
	assert.True(t, errors.Is(err, gcm.ErrMalformedFST), "got %v", err)
}

func TestEncode_InvalidName(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		table := &Table{Entries: []Entry{
			{Kind: DirEntry, Next: 2},
			{Kind: FileEntry, Name: name},
		}}
		_, err := table.Encode()
		assert.True(t, errors.Is(err, gcm.ErrInvalidName), "name %q: %v", name, err)
	}
}

func TestEncode_StringTableTooLarge(t *testing.T) {
	long := strings.Repeat("n", 1<<20)
	b := NewBuilder()
	for i := 0; i < 17; i++ {
		b.AddFile(fmt.Sprintf("%02d%s", i, long), 0, 0)
	}
	table, err := b.Table()
	require.NoError(t, err)

	_, err = table.Encode()
	assert.True(t, errors.Is(err, gcm.ErrStringTableTooLarge), "got %v", err)
}

func TestRead_OffsetInError(t *testing.T) {
	data, err := sampleTable(t).Encode()
	require.NoError(t, err)
	data[EntrySize] = 9

	image := make([]byte, 0x1000)
	copy(image[0x800:], data)
	h, err := gcm.NewHeader("GTST01", "")
	require.NoError(t, err)
	h.FSTOffset = 0x800
	h.FSTSize = uint32(len(data))

	_, err = Read(bytes.NewReader(image), h)
	var fe *gcm.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, int64(0x800+EntrySize), fe.Offset)
}

// randomTable builds a random tree of at most 60 entries and depth 6.
func randomTable(t *testing.T, rng *rand.Rand) *Table {
	t.Helper()
	b := NewBuilder()
	depth := 0
	for n := 0; n < 60; n++ {
		switch r := rng.Intn(10); {
		case r < 3 && depth < 6:
			b.BeginDir(fmt.Sprintf("d%d", n))
			depth++
		case r < 5 && depth > 0:
			b.EndDir()
			depth--
		default:
			b.AddFile(fmt.Sprintf("f%d", n), uint32(n*4), uint32(n))
		}
	}
	for ; depth > 0; depth-- {
		b.EndDir()
	}
	table, err := b.Table()
	require.NoError(t, err)
	return table
}

func TestRandomTrees_RangeContainment(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 50; iter++ {
		table := randomTable(t, rng)
		data, err := table.Encode()
		require.NoError(t, err)
		decoded, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, table.Entries, decoded.Entries)

		for i, e := range decoded.Entries {
			if !e.IsDir() {
				continue
			}
			prevEnd := i + 1
			for _, c := range decoded.Children(i) {
				assert.GreaterOrEqual(t, c, prevEnd, "sibling ranges overlap under %d", i)
				end := c + 1
				if decoded.Entries[c].IsDir() {
					end = decoded.Entries[c].Next
				}
				assert.Greater(t, c, i)
				assert.LessOrEqual(t, end, e.Next, "child %d escapes %d", c, i)
				prevEnd = end
			}
			assert.Equal(t, e.Next, prevEnd, "directory %d range holds entries outside its children", i)
		}
	}
}
