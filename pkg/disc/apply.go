package disc

import (
	"fmt"
	"io"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// Image is a disc image open for in-place editing. *os.File satisfies it.
type Image interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
}

// ApplyPlan executes an edit plan against the image it was planned for.
// There is no rollback: an error after the first instruction leaves the
// image partially rewritten.
func ApplyPlan(img Image, p *EditPlan) error {
	buf := make([]byte, copyChunk)
	for i, ins := range p.Instructions {
		common.LogDebug(common.DebugInstruction, i, ins)
		if err := apply(img, ins, buf); err != nil {
			if i > 0 {
				common.LogWarn(common.WarnPartialEdit, i, len(p.Instructions))
			}
			return err
		}
	}
	return nil
}

func apply(img Image, ins Instruction, buf []byte) error {
	switch v := ins.(type) {
	case CopyRange:
		return copyRange(img, v, buf)
	case WriteSource:
		if err := copySource(io.NewOffsetWriter(img, v.Offset), img, v.Source, buf); err != nil {
			return &gcm.IOError{Region: gcm.RegionFileData, Offset: v.Offset, Err: fmt.Errorf("%s: %w", v.Path, err)}
		}
	case WriteBytes:
		if _, err := img.WriteAt(v.Data, v.Offset); err != nil {
			return &gcm.IOError{Region: v.Region, Offset: v.Offset, Err: err}
		}
	case Truncate:
		if err := img.Truncate(v.Size); err != nil {
			return &gcm.IOError{Region: gcm.RegionFileData, Offset: v.Size, Err: err}
		}
	default:
		return fmt.Errorf("unknown instruction %T", ins)
	}
	return nil
}

// copyRange moves bytes through buf one chunk at a time. Moving down it
// walks front to back and moving up back to front, so overlapping ranges
// never overwrite bytes that are still to be read.
func copyRange(img Image, c CopyRange, buf []byte) error {
	if c.From == c.To || c.Size == 0 {
		return nil
	}
	chunk := int64(len(buf))
	step := func(pos int64) error {
		n := min(chunk, c.Size-pos)
		if _, err := img.ReadAt(buf[:n], c.From+pos); err != nil {
			return &gcm.IOError{Region: gcm.RegionFileData, Offset: c.From + pos, Err: err}
		}
		if _, err := img.WriteAt(buf[:n], c.To+pos); err != nil {
			return &gcm.IOError{Region: gcm.RegionFileData, Offset: c.To + pos, Err: err}
		}
		return nil
	}
	if c.To < c.From {
		for pos := int64(0); pos < c.Size; pos += chunk {
			if err := step(pos); err != nil {
				return err
			}
		}
		return nil
	}
	last := (c.Size - 1) / chunk * chunk
	for pos := last; pos >= 0; pos -= chunk {
		if err := step(pos); err != nil {
			return err
		}
	}
	return nil
}
