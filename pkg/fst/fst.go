// Package fst implements the GameCube File System Table: a flat array of
// 12-byte entries followed by a string table of NUL-terminated names.
//
// Directories do not list their children. A directory entry stores its
// parent index and the index one past its last descendant, so every
// subtree is a contiguous index range starting right after the directory.
package fst

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// EntrySize is the on-disc size of one FST entry.
const EntrySize = 12

// maxStringTable is the span addressable by the 24-bit name offset.
const maxStringTable = 1 << 24

// EntryKind tags an entry as a file or a directory.
type EntryKind uint8

const (
	FileEntry EntryKind = 0
	DirEntry  EntryKind = 1
)

func (k EntryKind) String() string {
	switch k {
	case FileEntry:
		return "file"
	case DirEntry:
		return "dir"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry is one decoded FST entry.
//
// For directories Parent and Next are the stored fields. For files Parent
// is derived while decoding, since files only store Offset and Size.
type Entry struct {
	Kind   EntryKind
	Name   string
	Parent int
	Offset uint32
	Size   uint32
	Next   int
}

// IsDir reports whether e is a directory entry.
func (e *Entry) IsDir() bool { return e.Kind == DirEntry }

// Table is a decoded FST. Entries[0] is always the root directory.
type Table struct {
	Entries []Entry
}

// Len returns the number of entries including the root.
func (t *Table) Len() int { return len(t.Entries) }

// Decode parses an FST region. The string table starts right after the
// last entry and runs to the end of data.
func Decode(data []byte) (*Table, error) {
	if len(data) < EntrySize {
		return nil, truncated(0, "region of %d bytes holds no root entry", len(data))
	}
	if data[0] != byte(DirEntry) {
		return nil, malformed(0, "root entry is not a directory")
	}
	count := binary.BigEndian.Uint32(data[8:12])
	if count == 0 || uint64(count)*EntrySize > uint64(len(data)) {
		return nil, truncated(8, "%d entries do not fit in %d bytes", count, len(data))
	}

	strs := data[count*EntrySize:]
	t := &Table{Entries: make([]Entry, count)}
	t.Entries[0] = Entry{Kind: DirEntry, Parent: 0, Next: int(count)}

	for i := 1; i < int(count); i++ {
		raw := data[i*EntrySize : (i+1)*EntrySize]
		word0 := binary.BigEndian.Uint32(raw[0:4])
		w1 := binary.BigEndian.Uint32(raw[4:8])
		w2 := binary.BigEndian.Uint32(raw[8:12])

		nameOff := word0 & 0x00FFFFFF
		if int(nameOff) >= len(strs) {
			return nil, truncated(int64(i*EntrySize), "entry %d name offset 0x%X past string table of 0x%X bytes", i, nameOff, len(strs))
		}
		name, ok := common.CString(strs[nameOff:])
		if !ok {
			return nil, truncated(int64(i*EntrySize), "entry %d name at 0x%X is not terminated", i, nameOff)
		}
		if err := ValidateName(name); err != nil {
			return nil, malformed(int64(i*EntrySize), "entry %d: %v", i, err)
		}

		e := Entry{Kind: EntryKind(raw[0]), Name: name}
		switch e.Kind {
		case FileEntry:
			e.Offset = w1
			e.Size = w2
		case DirEntry:
			if w2 <= uint32(i) || w2 > count {
				return nil, truncated(int64(i*EntrySize+8), "directory %d child range ends at %d, outside (%d, %d]", i, w2, i, count)
			}
			if w1 >= uint32(i) {
				return nil, malformed(int64(i*EntrySize+4), "directory %d parent %d is not an earlier entry", i, w1)
			}
			e.Parent = int(w1)
			e.Next = int(w2)
		default:
			return nil, malformed(int64(i*EntrySize), "entry %d has unknown flags 0x%02X", i, raw[0])
		}
		t.Entries[i] = e
	}

	if err := t.linkParents(); err != nil {
		return nil, err
	}
	common.LogDebug(common.DebugFSTDecoded, count, len(data))
	return t, nil
}

// linkParents derives file parents and checks that every stored directory
// parent and range agrees with the nesting implied by the ranges. Names
// must be unique within a directory.
func (t *Table) linkParents() error {
	stack := []int{0}
	names := map[int]map[string]int{}
	for i := 1; i < len(t.Entries); i++ {
		for i >= t.Entries[stack[len(stack)-1]].Next {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		e := &t.Entries[i]
		siblings := names[parent]
		if siblings == nil {
			siblings = map[string]int{}
			names[parent] = siblings
		}
		if prev, ok := siblings[e.Name]; ok {
			return malformed(int64(i*EntrySize), "entry %d repeats name %q of entry %d in directory %d", i, e.Name, prev, parent)
		}
		siblings[e.Name] = i
		if !e.IsDir() {
			e.Parent = parent
			continue
		}
		if e.Parent != parent {
			return malformed(int64(i*EntrySize+4), "directory %d %q stores parent %d but lies inside %d", i, e.Name, e.Parent, parent)
		}
		if e.Next > t.Entries[parent].Next {
			return malformed(int64(i*EntrySize+8), "directory %d range ends at %d past its parent's end %d", i, e.Next, t.Entries[parent].Next)
		}
		stack = append(stack, i)
	}
	return nil
}

// Validate checks the structural invariants: the root is a directory
// spanning every entry, each directory's range nests inside its parent's
// and sibling ranges never overlap.
func (t *Table) Validate() error {
	if len(t.Entries) == 0 || !t.Entries[0].IsDir() {
		return malformed(0, "missing root directory")
	}
	if t.Entries[0].Next != len(t.Entries) {
		return malformed(8, "root spans %d entries, table has %d", t.Entries[0].Next, len(t.Entries))
	}
	for i := 1; i < len(t.Entries); i++ {
		e := t.Entries[i]
		if e.IsDir() && (e.Next <= i || e.Next > len(t.Entries)) {
			return truncated(int64(i*EntrySize+8), "directory %d child range ends at %d", i, e.Next)
		}
		if e.Parent < 0 || e.Parent >= i || !t.Entries[e.Parent].IsDir() {
			return malformed(int64(i*EntrySize+4), "entry %d parent %d is not an earlier directory", i, e.Parent)
		}
	}
	check := &Table{Entries: make([]Entry, len(t.Entries))}
	copy(check.Entries, t.Entries)
	if err := check.linkParents(); err != nil {
		return err
	}
	for i := range t.Entries {
		if t.Entries[i].Parent != check.Entries[i].Parent {
			return malformed(int64(i*EntrySize+4), "file %d records parent %d but lies inside %d", i, t.Entries[i].Parent, check.Entries[i].Parent)
		}
	}
	return nil
}

// EncodedSize returns the byte length Encode will produce.
func (t *Table) EncodedSize() uint32 {
	size := uint32(len(t.Entries)) * EntrySize
	for i := 1; i < len(t.Entries); i++ {
		size += uint32(len(t.Entries[i].Name)) + 1
	}
	return size
}

// Encode serialises the table. Entries keep their index order and names are
// appended to the string table in entry order.
func (t *Table) Encode() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	count := len(t.Entries)
	out := make([]byte, count*EntrySize, t.EncodedSize())

	common.PutUint32BE(out, 0, uint32(DirEntry)<<24)
	common.PutUint32BE(out, 4, 0)
	common.PutUint32BE(out, 8, uint32(count))

	for i := 1; i < count; i++ {
		e := t.Entries[i]
		if err := ValidateName(e.Name); err != nil {
			return nil, &gcm.PathError{Op: "encode", Path: t.FullPath(i), Err: err}
		}
		nameOff := len(out) - count*EntrySize
		if nameOff >= maxStringTable {
			return nil, &gcm.FormatError{Region: gcm.RegionFST, Offset: int64(i * EntrySize), Err: gcm.ErrStringTableTooLarge}
		}
		out = append(out, e.Name...)
		out = append(out, 0)

		base := i * EntrySize
		common.PutUint32BE(out, base, uint32(e.Kind)<<24|uint32(nameOff))
		if e.IsDir() {
			common.PutUint32BE(out, base+4, uint32(e.Parent))
			common.PutUint32BE(out, base+8, uint32(e.Next))
		} else {
			common.PutUint32BE(out, base+4, e.Offset)
			common.PutUint32BE(out, base+8, e.Size)
		}
	}
	return out, nil
}

// ValidateName rejects names that cannot be stored in the string table or
// addressed as a single path element.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", gcm.ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q contains '/' or NUL", gcm.ErrInvalidName, name)
	}
	return nil
}

// Read decodes the FST region described by the header.
func Read(r io.ReaderAt, h *gcm.Header) (*Table, error) {
	data, err := common.ReadBytesAt(r, int64(h.FSTOffset), int(h.FSTSize))
	if err != nil {
		return nil, &gcm.IOError{Region: gcm.RegionFST, Offset: int64(h.FSTOffset), Err: err}
	}
	t, err := Decode(data)
	if err != nil {
		var fe *gcm.FormatError
		if errors.As(err, &fe) {
			fe.Offset += int64(h.FSTOffset)
		}
		return nil, err
	}
	return t, nil
}

func truncated(offset int64, format string, args ...interface{}) error {
	return &gcm.FormatError{Region: gcm.RegionFST, Offset: offset, Err: fmt.Errorf("%w: "+format, append([]interface{}{gcm.ErrTruncatedFST}, args...)...)}
}

func malformed(offset int64, format string, args ...interface{}) error {
	return &gcm.FormatError{Region: gcm.RegionFST, Offset: offset, Err: fmt.Errorf("%w: "+format, append([]interface{}{gcm.ErrMalformedFST}, args...)...)}
}
