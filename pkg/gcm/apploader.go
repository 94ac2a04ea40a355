package gcm

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hansbonini/gcmtools/pkg/common"
)

// Apploader header layout
const (
	ApploaderHeaderSize = 0x20
	MaxApploaderSize    = 0x200000

	apploaderDate        = 0x00
	apploaderDateSize    = 0x10
	apploaderEntryPoint  = 0x10
	apploaderCodeSize    = 0x14
	apploaderTrailerSize = 0x18
)

// Apploader describes the bootstrap program stored at ApploaderOffset.
type Apploader struct {
	Date        string
	EntryPoint  uint32
	CodeSize    uint32
	TrailerSize uint32
}

// TotalSize is the region size: header, code and trailer rounded up to 32 bytes.
func (a *Apploader) TotalSize() uint32 {
	return common.Align(ApploaderHeaderSize+a.CodeSize+a.TrailerSize, RegionAlignment)
}

// ParseApploader decodes the apploader header at the start of data.
func ParseApploader(data []byte) (*Apploader, error) {
	if len(data) < ApploaderHeaderSize {
		return nil, formatErr(RegionApploader, 0, fmt.Errorf("%w: need 0x%X header bytes, got 0x%X", ErrBadApploader, ApploaderHeaderSize, len(data)))
	}
	date, ok := common.CString(data[apploaderDate : apploaderDate+apploaderDateSize])
	if !ok {
		date = string(data[apploaderDate : apploaderDate+apploaderDateSize])
	}
	a := &Apploader{
		Date:        date,
		EntryPoint:  binary.BigEndian.Uint32(data[apploaderEntryPoint:]),
		CodeSize:    binary.BigEndian.Uint32(data[apploaderCodeSize:]),
		TrailerSize: binary.BigEndian.Uint32(data[apploaderTrailerSize:]),
	}
	if a.CodeSize == 0 {
		return nil, formatErr(RegionApploader, apploaderCodeSize, fmt.Errorf("%w: zero code size", ErrBadApploader))
	}
	if uint64(a.CodeSize)+uint64(a.TrailerSize) > MaxApploaderSize-ApploaderHeaderSize {
		return nil, formatErr(RegionApploader, apploaderCodeSize,
			fmt.Errorf("%w: code 0x%X + trailer 0x%X exceeds 0x%X", ErrBadApploader, a.CodeSize, a.TrailerSize, MaxApploaderSize))
	}
	return a, nil
}

// Bytes encodes the apploader header. The reserved word at 0x1C is zero.
func (a *Apploader) Bytes() []byte {
	out := make([]byte, ApploaderHeaderSize)
	copy(out[apploaderDate:apploaderDate+apploaderDateSize], a.Date)
	common.PutUint32BE(out, apploaderEntryPoint, a.EntryPoint)
	common.PutUint32BE(out, apploaderCodeSize, a.CodeSize)
	common.PutUint32BE(out, apploaderTrailerSize, a.TrailerSize)
	return out
}

// ReadApploader decodes the apploader stored at offset in an image.
func ReadApploader(r io.ReaderAt, offset int64) (*Apploader, error) {
	data, err := common.ReadBytesAt(r, offset, ApploaderHeaderSize)
	if err != nil {
		return nil, ioErr(RegionApploader, offset, err)
	}
	a, err := ParseApploader(data)
	if err != nil {
		return nil, err
	}
	common.LogDebug(common.DebugApploaderInfo, offset, a.TotalSize())
	return a, nil
}
