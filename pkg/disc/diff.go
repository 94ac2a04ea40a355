package disc

import (
	"fmt"
	"sort"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/fst"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// OpKind is the kind of a queued tree edit.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	if k == OpInsert {
		return "insert"
	}
	return "delete"
}

// Op is one queued insert or delete.
type Op struct {
	Kind   OpKind
	Path   string
	Source Source // inserts only
}

// InsertOp queues adding src at path.
func InsertOp(path string, src Source) Op { return Op{Kind: OpInsert, Path: path, Source: src} }

// DeleteOp queues removing path.
func DeleteOp(path string) Op { return Op{Kind: OpDelete, Path: path} }

// Apply runs ops against the tree in order.
func (t *Tree) Apply(ops []Op) error {
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpInsert:
			if op.Source == nil {
				return &gcm.PathError{Op: "insert", Path: op.Path, Err: fmt.Errorf("no source")}
			}
			err = t.Insert(op.Path, op.Source)
		case OpDelete:
			err = t.Delete(op.Path)
		default:
			err = &gcm.PathError{Op: op.Kind.String(), Path: op.Path, Err: fmt.Errorf("unknown operation %d", op.Kind)}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Instruction is one step of an edit plan. Instructions run in order.
type Instruction interface {
	fmt.Stringer
	instruction()
}

// CopyRange moves bytes already in the image.
type CopyRange struct {
	From int64
	To   int64
	Size int64
}

// WriteSource writes a source's content at Offset.
type WriteSource struct {
	Offset int64
	Source Source
	Path   string
}

// WriteBytes writes literal bytes at Offset.
type WriteBytes struct {
	Offset int64
	Data   []byte
	Region string
}

// Truncate sets the image length.
type Truncate struct {
	Size int64
}

func (CopyRange) instruction()   {}
func (WriteSource) instruction() {}
func (WriteBytes) instruction()  {}
func (Truncate) instruction()    {}

func (c CopyRange) String() string {
	return fmt.Sprintf("copy 0x%X bytes 0x%X -> 0x%X", c.Size, c.From, c.To)
}

func (w WriteSource) String() string {
	return fmt.Sprintf("write %s (0x%X bytes) at 0x%X", w.Path, w.Source.Len(), w.Offset)
}

func (w WriteBytes) String() string {
	return fmt.Sprintf("write %s (0x%X bytes) at 0x%X", w.Region, len(w.Data), w.Offset)
}

func (t Truncate) String() string { return fmt.Sprintf("truncate to 0x%X", t.Size) }

// EditOptions tunes PlanEdit.
type EditOptions struct {
	// FileAlignment aligns every relocated or appended file.
	FileAlignment uint32
}

// DefaultEditOptions returns 4-byte file alignment.
func DefaultEditOptions() EditOptions {
	return EditOptions{FileAlignment: gcm.DefaultFileAlign}
}

// EditPlan is the ordered I/O needed to turn an image into its edited form.
type EditPlan struct {
	Instructions []Instruction

	Table       *fst.Table
	FST         Region
	FSTCapacity int64
	DataStart   int64
	Files       []Placement

	End       int64
	ImageSize int64

	BytesMoved   int64
	BytesWritten int64
}

// extent is a run of overlapping file ranges that moves as one block.
type extent struct {
	off, end int64
	new      int64
}

func (e extent) size() int64 { return e.end - e.off }

func mergeExtents(ranges []InImage) []extent {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Offset < ranges[j].Offset })
	var out []extent
	for _, r := range ranges {
		if r.Size == 0 {
			continue
		}
		if n := len(out); n > 0 && r.Offset < out[n-1].end {
			out[n-1].end = max(out[n-1].end, r.End())
			continue
		}
		out = append(out, extent{off: r.Offset, end: r.End()})
	}
	return out
}

// findExtent returns the extent holding offset.
func findExtent(exts []extent, offset int64) *extent {
	i := sort.Search(len(exts), func(i int) bool { return exts[i].off > offset }) - 1
	if i < 0 {
		return nil
	}
	return &exts[i]
}

// checkBootFile decodes a replacement apploader or DOL. Its header must be
// well formed and must not claim more than the region holds.
func checkBootFile(s Special, src Source, region Region) error {
	raw, err := readSource(nil, src)
	if err != nil {
		return &gcm.IOError{Region: s.Region(), Err: fmt.Errorf("%s: %w", s.SpecialPath(), err)}
	}
	var total uint32
	switch s {
	case SpecialApploader:
		a, err := gcm.ParseApploader(raw)
		if err != nil {
			return err
		}
		total = a.TotalSize()
	case SpecialBoot:
		d, err := gcm.ParseDOL(raw)
		if err != nil {
			return err
		}
		total = d.TotalSize()
	}
	if int64(total) > region.Size {
		return &gcm.PathError{Op: "replace", Path: s.SpecialPath(),
			Err: fmt.Errorf("%w: header claims 0x%X bytes of a 0x%X byte %s", gcm.ErrRegionTooSmall, total, region.Size, s.Region())}
	}
	return nil
}

// emptyFileOffset places a zero-size file kept from the image. It follows
// the extent at or before its old offset, clamped to the data area between
// dataStart and the next extent (or end).
func emptyFileOffset(kept []extent, off, dataStart, end int64) int64 {
	i := sort.Search(len(kept), func(i int) bool { return kept[i].off > off }) - 1
	limit := end
	if i+1 < len(kept) {
		limit = kept[i+1].new
	}
	pos := off
	if i >= 0 {
		pos = kept[i].new + off - kept[i].off
	}
	return min(max(pos, dataStart), limit)
}

// PlanEdit applies ops to a copy of the image's tree and plans the minimal
// rewrite. Files before the first change keep their bytes in place, later
// files pack down (or up when the FST outgrows its space), and inserted
// files are appended after all existing data. Nothing is read or written
// except the content of a replacement header.
func PlanEdit(d *Disc, ops []Op, opts EditOptions) (*EditPlan, error) {
	if err := validateAlignment(opts.FileAlignment); err != nil {
		return nil, err
	}
	base := d.Tree()
	edited := base.Clone()
	if err := edited.Apply(ops); err != nil {
		return nil, err
	}
	tt, err := buildTable(edited.Root)
	if err != nil {
		return nil, err
	}

	p := &EditPlan{Table: tt.table}
	p.FST = Region{Offset: int64(d.Header.FSTOffset), Size: int64(tt.table.EncodedSize())}
	oldStart := d.DataStart()
	p.FSTCapacity = oldStart - p.FST.Offset
	p.DataStart = oldStart
	if p.FST.Size > p.FSTCapacity {
		p.DataStart = common.Align64(p.FST.End(), gcm.RegionAlignment)
		common.LogWarn(common.WarnFSTCapacityExceeded, p.FST.Size, p.FSTCapacity, p.DataStart-oldStart)
		p.FSTCapacity = p.DataStart - p.FST.Offset
	}

	var origRanges, keptRanges []InImage
	for _, i := range d.Table.Files() {
		e := d.Table.Entries[i]
		origRanges = append(origRanges, InImage{Offset: int64(e.Offset), Size: int64(e.Size)})
	}
	var added []int
	for i, f := range tt.files {
		if src, ok := f.Node.Source.(InImage); ok {
			keptRanges = append(keptRanges, src)
		} else {
			added = append(added, i)
		}
	}
	orig := mergeExtents(origRanges)
	kept := mergeExtents(keptRanges)

	// Extents matching the original layout up to the first change stay put.
	k := 0
	if p.DataStart == oldStart {
		for k < len(kept) && k < len(orig) && kept[k].off == orig[k].off && kept[k].end == orig[k].end {
			kept[k].new = kept[k].off
			k++
		}
	}
	cursor := p.DataStart
	if k > 0 {
		cursor = kept[k-1].end
	}
	for i := k; i < len(kept); i++ {
		kept[i].new = common.Align64(cursor, opts.FileAlignment)
		cursor = kept[i].new + kept[i].size()
	}
	for i := range tt.files {
		src, ok := tt.files[i].Node.Source.(InImage)
		if !ok {
			continue
		}
		if src.Size == 0 {
			tt.place(i, emptyFileOffset(kept, src.Offset, p.DataStart, cursor))
			continue
		}
		e := findExtent(kept, src.Offset)
		tt.place(i, e.new+src.Offset-e.off)
	}
	for _, i := range added {
		off := common.Align64(cursor, opts.FileAlignment)
		tt.place(i, off)
		cursor = off + tt.files[i].Size
	}
	p.Files = tt.files
	p.End = max(cursor, p.FST.End())
	if p.End > gcm.DiscSize {
		return nil, fmt.Errorf("%w: edited layout ends at 0x%X, disc holds 0x%X", gcm.ErrImageTooLarge, p.End, gcm.DiscSize)
	}

	// Check special replacements before emitting anything.
	newMax := max(int64(d.Header.MaxFSTSize), p.FST.Size)
	var specials []Instruction
	headerReplaced := false
	for _, s := range Specials {
		src := edited.Special(s)
		if src == base.Special(s) {
			continue
		}
		region := d.SpecialRegion(s)
		if src.Len() > region.Size || (s == SpecialHeader && src.Len() != region.Size) {
			return nil, &gcm.PathError{Op: "replace", Path: s.SpecialPath(),
				Err: fmt.Errorf("%w: 0x%X bytes for a 0x%X byte %s", gcm.ErrRegionTooSmall, src.Len(), region.Size, s.Region())}
		}
		common.LogDebug(common.DebugSpecialReplaced, s, src.Len())
		if s == SpecialHeader {
			raw, err := readSource(nil, src)
			if err != nil {
				return nil, &gcm.IOError{Region: gcm.RegionHeader, Err: err}
			}
			h, err := patchHeader(raw, d.BootRegion(), p.FST, newMax)
			if err != nil {
				return nil, err
			}
			specials = append(specials, WriteBytes{Offset: 0, Data: h.Bytes(), Region: gcm.RegionHeader})
			headerReplaced = true
			continue
		}
		if err := checkBootFile(s, src, region); err != nil {
			return nil, err
		}
		specials = append(specials, WriteSource{Offset: region.Offset, Source: src, Path: s.SpecialPath()})
		if pad := region.Size - src.Len(); pad > 0 {
			specials = append(specials, WriteBytes{Offset: region.Offset + src.Len(), Data: make([]byte, pad), Region: s.Region()})
		}
	}

	fstData, err := tt.table.Encode()
	if err != nil {
		return nil, err
	}

	// Down moves run front to back, then up moves back to front. Packing
	// keeps physical order, so no move overwrites a source still unread.
	var ups []CopyRange
	for _, e := range kept[k:] {
		c := CopyRange{From: e.off, To: e.new, Size: e.size()}
		switch {
		case e.new < e.off:
			p.add(c)
		case e.new > e.off:
			ups = append(ups, c)
		}
	}
	for i := len(ups) - 1; i >= 0; i-- {
		p.add(ups[i])
	}
	for _, i := range added {
		f := tt.files[i]
		if f.Size > 0 {
			p.add(WriteSource{Offset: f.Offset, Source: f.Node.Source, Path: f.Path})
		}
	}
	p.add(WriteBytes{Offset: p.FST.Offset, Data: fstData, Region: gcm.RegionFST})
	if !headerReplaced {
		if uint32(p.FST.Size) != d.Header.FSTSize {
			p.add(WriteBytes{Offset: gcm.FieldFSTSize, Data: gcm.Uint32Field(uint32(p.FST.Size)), Region: gcm.RegionHeader})
		}
		if uint32(newMax) != d.Header.MaxFSTSize {
			p.add(WriteBytes{Offset: gcm.FieldMaxFSTSize, Data: gcm.Uint32Field(uint32(newMax)), Region: gcm.RegionHeader})
		}
	}
	for _, ins := range specials {
		p.add(ins)
	}

	// An image with bytes past its data (a full-size disc) keeps its length.
	p.ImageSize = p.End
	if d.Size > d.DataEnd() {
		p.ImageSize = max(d.Size, p.End)
	} else if p.End < d.Size {
		p.add(Truncate{Size: p.End})
	}
	return p, nil
}

func (p *EditPlan) add(ins Instruction) {
	switch v := ins.(type) {
	case CopyRange:
		p.BytesMoved += v.Size
	case WriteSource:
		p.BytesWritten += v.Source.Len()
	case WriteBytes:
		p.BytesWritten += int64(len(v.Data))
	}
	p.Instructions = append(p.Instructions, ins)
}
