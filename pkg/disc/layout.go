package disc

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/fst"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// Region is an absolute byte range of the image.
type Region struct {
	Offset int64
	Size   int64
}

// End returns the offset one past the region.
func (r Region) End() int64 { return r.Offset + r.Size }

func (r Region) String() string { return fmt.Sprintf("0x%X+0x%X", r.Offset, r.Size) }

// Placement is the final position of one file.
type Placement struct {
	Node   *Node
	Path   string
	Entry  int // index in Plan.Table
	Offset int64
	Size   int64
}

// Plan is a finalized layout: every region and file at an absolute offset.
type Plan struct {
	Header    Region
	Apploader Region
	Boot      Region
	FST       Region

	// FSTCapacity is the space reserved for the FST, written to the
	// header's max FST size field.
	FSTCapacity int64
	DataStart   int64

	// Files are in pre-order, which is also ascending offset order.
	Files []Placement
	Table *fst.Table

	// End is one past the last file byte; ImageSize adds trailing padding.
	End       int64
	ImageSize int64
}

// LayoutOptions tunes a full rebuild.
type LayoutOptions struct {
	// FileAlignment is the alignment of every file offset. It must be a
	// power of two and at least 4.
	FileAlignment uint32
	// FSTReserve is extra FST capacity left for later in-place growth.
	FSTReserve uint32
	// PadToDiscSize pads the image to the full disc size.
	PadToDiscSize bool
}

// DefaultLayoutOptions returns 4-byte file alignment, no reserve and no
// padding.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{FileAlignment: gcm.DefaultFileAlign}
}

func validateAlignment(a uint32) error {
	if a < gcm.DefaultFileAlign || !common.IsPowerOfTwo(a) {
		return common.FormatError(common.ErrInvalidFileAlignment, a)
	}
	return nil
}

// treeTable holds the FST built from a tree before offsets are known.
type treeTable struct {
	table *fst.Table
	files []Placement
}

// buildTable encodes the tree shape into an FST. File entries get their
// offsets once the planner places them.
func buildTable(root *Node) (*treeTable, error) {
	b := fst.NewBuilder()
	tt := &treeTable{}
	var add func(dir *Node, prefix string)
	add = func(dir *Node, prefix string) {
		for _, c := range dir.Children {
			p := c.Name
			if prefix != "" {
				p = prefix + "/" + c.Name
			}
			if c.IsDir() {
				b.BeginDir(c.Name)
				add(c, p)
				b.EndDir()
				continue
			}
			i := b.AddFile(c.Name, 0, 0)
			tt.files = append(tt.files, Placement{Node: c, Path: p, Entry: i, Size: c.Source.Len()})
		}
	}
	add(root, "")
	table, err := b.Table()
	if err != nil {
		return nil, err
	}
	tt.table = table
	for _, f := range tt.files {
		if _, err := common.SafeInt64ToUint32(f.Size); err != nil {
			return nil, &gcm.PathError{Op: "layout", Path: f.Path, Err: fmt.Errorf("%w: %v", gcm.ErrImageTooLarge, err)}
		}
	}
	return tt, nil
}

// place records a file's final offset in the placement and its FST entry.
func (tt *treeTable) place(i int, offset int64) {
	f := &tt.files[i]
	f.Offset = offset
	e := &tt.table.Entries[f.Entry]
	e.Offset = uint32(offset)
	e.Size = uint32(f.Size)
	common.LogDebug(common.DebugFilePlaced, f.Path, offset, f.Size)
}

// PlanLayout lays out a tree for a full rebuild: header at 0, apploader at
// 0x2440, then DOL and FST each on the next 32-byte boundary, then files in
// pre-order.
func PlanLayout(t *Tree, opts LayoutOptions) (*Plan, error) {
	if err := validateAlignment(opts.FileAlignment); err != nil {
		return nil, err
	}
	for _, s := range Specials {
		if t.Special(s) == nil {
			return nil, &gcm.PathError{Op: "layout", Path: s.SpecialPath(), Err: gcm.ErrNotFound}
		}
	}
	if n := t.Header.Len(); n != gcm.HeaderSize {
		return nil, &gcm.FormatError{Region: gcm.RegionHeader, Err: fmt.Errorf("%w: header is 0x%X bytes, want 0x%X", gcm.ErrRegionTooSmall, n, gcm.HeaderSize)}
	}

	tt, err := buildTable(t.Root)
	if err != nil {
		return nil, err
	}

	p := &Plan{Table: tt.table}
	p.Header = Region{Offset: 0, Size: gcm.HeaderSize}
	p.Apploader = Region{Offset: gcm.ApploaderOffset, Size: common.Align64(t.Apploader.Len(), gcm.RegionAlignment)}
	p.Boot = Region{Offset: common.Align64(p.Apploader.End(), gcm.RegionAlignment), Size: common.Align64(t.Boot.Len(), gcm.RegionAlignment)}
	p.FST = Region{Offset: common.Align64(p.Boot.End(), gcm.RegionAlignment), Size: int64(tt.table.EncodedSize())}
	p.FSTCapacity = p.FST.Size + int64(opts.FSTReserve)
	p.DataStart = common.Align64(p.FST.Offset+p.FSTCapacity, gcm.RegionAlignment)

	cursor := p.DataStart
	for i := range tt.files {
		off := common.Align64(cursor, opts.FileAlignment)
		tt.place(i, off)
		cursor = off + tt.files[i].Size
	}
	p.Files = tt.files
	p.End = cursor
	p.ImageSize = p.End

	if p.End > gcm.DiscSize {
		return nil, fmt.Errorf("%w: layout ends at 0x%X, disc holds 0x%X", gcm.ErrImageTooLarge, p.End, gcm.DiscSize)
	}
	if opts.PadToDiscSize {
		p.ImageSize = gcm.DiscSize
	}
	return p, nil
}

// patchHeader decodes the header bytes and points its boot block fields at
// the planned regions.
func patchHeader(raw []byte, dol, fstRegion Region, capacity int64) (*gcm.Header, error) {
	h, err := gcm.ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	h.DOLOffset = uint32(dol.Offset)
	h.FSTOffset = uint32(fstRegion.Offset)
	h.FSTSize = uint32(fstRegion.Size)
	h.MaxFSTSize = uint32(capacity)
	return h, nil
}
