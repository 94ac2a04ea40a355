package gcm

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hansbonini/gcmtools/pkg/common"
)

// DOL header layout
const (
	DOLHeaderSize   = 0x100
	DOLTextSections = 7
	DOLDataSections = 11
	DOLSections     = DOLTextSections + DOLDataSections

	dolOffsets   = 0x00
	dolAddresses = 0x48
	dolSizes     = 0x90
	dolBSSAddr   = 0xD8
	dolBSSSize   = 0xDC
	dolEntry     = 0xE0
)

// DOLSection is one text or data section of the boot executable.
type DOLSection struct {
	Offset  uint32
	Address uint32
	Size    uint32
}

// DOL describes the boot executable header.
type DOL struct {
	Sections   [DOLSections]DOLSection
	BSSAddress uint32
	BSSSize    uint32
	EntryPoint uint32
}

// TotalSize returns the bytes the executable occupies on disc. BSS has no
// file offset and contributes nothing.
func (d *DOL) TotalSize() uint32 {
	end := uint32(DOLHeaderSize)
	for _, s := range d.Sections {
		if s.Size == 0 {
			continue
		}
		if e := s.Offset + s.Size; e > end {
			end = e
		}
	}
	return common.Align(end, RegionAlignment)
}

// ParseDOL decodes the DOL header at the start of data.
func ParseDOL(data []byte) (*DOL, error) {
	if len(data) < DOLHeaderSize {
		return nil, formatErr(RegionDOL, 0, fmt.Errorf("%w: need 0x%X header bytes, got 0x%X", ErrBadDOL, DOLHeaderSize, len(data)))
	}
	d := &DOL{
		BSSAddress: binary.BigEndian.Uint32(data[dolBSSAddr:]),
		BSSSize:    binary.BigEndian.Uint32(data[dolBSSSize:]),
		EntryPoint: binary.BigEndian.Uint32(data[dolEntry:]),
	}

	used := 0
	for i := range d.Sections {
		s := DOLSection{
			Offset:  binary.BigEndian.Uint32(data[dolOffsets+i*4:]),
			Address: binary.BigEndian.Uint32(data[dolAddresses+i*4:]),
			Size:    binary.BigEndian.Uint32(data[dolSizes+i*4:]),
		}
		d.Sections[i] = s
		if s.Size == 0 {
			continue
		}
		used++
		if s.Offset < DOLHeaderSize {
			return nil, formatErr(RegionDOL, int64(dolOffsets+i*4), fmt.Errorf("%w: section %d at 0x%X overlaps the header", ErrBadDOL, i, s.Offset))
		}
		if uint64(s.Offset)+uint64(s.Size) > 0xFFFFFFFF {
			return nil, formatErr(RegionDOL, int64(dolSizes+i*4), fmt.Errorf("%w: section %d overflows", ErrBadDOL, i))
		}
	}
	if used == 0 {
		return nil, formatErr(RegionDOL, dolSizes, fmt.Errorf("%w: no sections", ErrBadDOL))
	}
	return d, nil
}

// Bytes encodes the DOL header. The padding after the entry point is zero.
func (d *DOL) Bytes() []byte {
	out := make([]byte, DOLHeaderSize)
	for i, s := range d.Sections {
		common.PutUint32BE(out, dolOffsets+i*4, s.Offset)
		common.PutUint32BE(out, dolAddresses+i*4, s.Address)
		common.PutUint32BE(out, dolSizes+i*4, s.Size)
	}
	common.PutUint32BE(out, dolBSSAddr, d.BSSAddress)
	common.PutUint32BE(out, dolBSSSize, d.BSSSize)
	common.PutUint32BE(out, dolEntry, d.EntryPoint)
	return out
}

// ReadDOL decodes the DOL stored at offset in an image.
func ReadDOL(r io.ReaderAt, offset int64) (*DOL, error) {
	data, err := common.ReadBytesAt(r, offset, DOLHeaderSize)
	if err != nil {
		return nil, ioErr(RegionDOL, offset, err)
	}
	d, err := ParseDOL(data)
	if err != nil {
		return nil, err
	}
	common.LogDebug(common.DebugDOLInfo, offset, d.TotalSize())
	return d, nil
}
