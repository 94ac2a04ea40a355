package fst

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// Builder appends entries in pre-order and fills in directory ranges as
// directories are closed.
type Builder struct {
	t    *Table
	open []int
}

// NewBuilder starts a table holding only the root directory.
func NewBuilder() *Builder {
	return &Builder{
		t:    &Table{Entries: []Entry{{Kind: DirEntry}}},
		open: []int{0},
	}
}

func (b *Builder) parent() int { return b.open[len(b.open)-1] }

// BeginDir appends a directory under the innermost open directory and
// opens it. It returns the new entry's index.
func (b *Builder) BeginDir(name string) int {
	i := len(b.t.Entries)
	b.t.Entries = append(b.t.Entries, Entry{Kind: DirEntry, Name: name, Parent: b.parent()})
	b.open = append(b.open, i)
	return i
}

// EndDir closes the innermost open directory.
func (b *Builder) EndDir() {
	if len(b.open) == 1 {
		return
	}
	i := b.parent()
	b.t.Entries[i].Next = len(b.t.Entries)
	b.open = b.open[:len(b.open)-1]
}

// AddFile appends a file under the innermost open directory.
func (b *Builder) AddFile(name string, offset, size uint32) int {
	i := len(b.t.Entries)
	b.t.Entries = append(b.t.Entries, Entry{Kind: FileEntry, Name: name, Parent: b.parent(), Offset: offset, Size: size})
	return i
}

// Table closes the root and returns the finished table.
func (b *Builder) Table() (*Table, error) {
	if len(b.open) != 1 {
		return nil, &gcm.FormatError{Region: gcm.RegionFST, Err: fmt.Errorf("%w: %d directories left open", gcm.ErrMalformedFST, len(b.open)-1)}
	}
	b.t.Entries[0].Next = len(b.t.Entries)
	if err := b.t.Validate(); err != nil {
		return nil, err
	}
	return b.t, nil
}
