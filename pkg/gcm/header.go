// Package gcm decodes and encodes the fixed-purpose regions of a GameCube
// disc image: the disc header, the apploader and the boot DOL.
package gcm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hansbonini/gcmtools/pkg/common"
)

// Disc layout constants
const (
	Magic            uint32 = 0xC2339F3D
	HeaderSize              = 0x2440     // boot.bin + bi2.bin
	ApploaderOffset         = HeaderSize // fixed by the IPL
	RegionAlignment         = 32
	DefaultFileAlign        = 4
	DiscSize         int64  = 0x57058000 // 1,459,978,240 bytes

	GameIDSize  = 6
	TitleOffset = 0x20
	TitleSize   = 0x3E0

	offsetDiscNumber = 0x006
	offsetVersion    = 0x007
	offsetAudio      = 0x008
	offsetStreamBuf  = 0x009
	offsetMagic      = 0x01C
	offsetDOL        = 0x420
	offsetFST        = 0x424
	offsetFSTSize    = 0x428
	offsetMaxFSTSize = 0x42C
)

// Header field offsets patched by in-place edits.
const (
	FieldDOLOffset  = offsetDOL
	FieldFSTOffset  = offsetFST
	FieldFSTSize    = offsetFSTSize
	FieldMaxFSTSize = offsetMaxFSTSize
)

// Header is the decoded disc header. The raw bytes are kept so that
// everything this package does not understand is written back unchanged.
type Header struct {
	raw [HeaderSize]byte

	GameID           string
	DiscNumber       byte
	Version          byte
	AudioStreaming   byte
	StreamBufferSize byte
	Title            string

	DOLOffset  uint32
	FSTOffset  uint32
	FSTSize    uint32
	MaxFSTSize uint32
}

// NewHeader returns a blank header carrying only the magic, game ID and title.
func NewHeader(gameID, title string) (*Header, error) {
	h := &Header{}
	binary.BigEndian.PutUint32(h.raw[offsetMagic:], Magic)
	if err := h.SetGameID(gameID); err != nil {
		return nil, err
	}
	if err := h.SetTitle(title); err != nil {
		return nil, err
	}
	h.decodeFields()
	return h, nil
}

// ParseHeader decodes a header from the first HeaderSize bytes of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, formatErr(RegionHeader, 0, fmt.Errorf("need 0x%X bytes, got 0x%X: %w", HeaderSize, len(data), io.ErrUnexpectedEOF))
	}
	h := &Header{}
	copy(h.raw[:], data[:HeaderSize])

	if magic := binary.BigEndian.Uint32(h.raw[offsetMagic:]); magic != Magic {
		return nil, formatErr(RegionHeader, offsetMagic, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, magic))
	}
	h.decodeFields()

	common.LogDebug(common.DebugHeaderInfo, h.GameID, h.DOLOffset, h.FSTOffset, h.FSTSize, h.MaxFSTSize)
	return h, nil
}

// ReadHeader reads and decodes the header at offset 0 of an image.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	data, err := common.ReadBytesAt(r, 0, HeaderSize)
	if err != nil {
		return nil, ioErr(RegionHeader, 0, err)
	}
	return ParseHeader(data)
}

func (h *Header) decodeFields() {
	h.GameID = string(bytes.TrimRight(h.raw[:GameIDSize], "\x00"))
	h.DiscNumber = h.raw[offsetDiscNumber]
	h.Version = h.raw[offsetVersion]
	h.AudioStreaming = h.raw[offsetAudio]
	h.StreamBufferSize = h.raw[offsetStreamBuf]
	title, ok := common.CString(h.raw[TitleOffset : TitleOffset+TitleSize])
	if !ok {
		title = string(h.raw[TitleOffset : TitleOffset+TitleSize])
	}
	h.Title = title
	h.DOLOffset = binary.BigEndian.Uint32(h.raw[offsetDOL:])
	h.FSTOffset = binary.BigEndian.Uint32(h.raw[offsetFST:])
	h.FSTSize = binary.BigEndian.Uint32(h.raw[offsetFSTSize:])
	h.MaxFSTSize = binary.BigEndian.Uint32(h.raw[offsetMaxFSTSize:])
}

// SetGameID overwrites the game code (4 characters) or the game code and
// maker code (6 characters). No other byte changes.
func (h *Header) SetGameID(id string) error {
	if len(id) != 4 && len(id) != GameIDSize {
		return fmt.Errorf("game ID %q must be 4 or 6 characters", id)
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7E {
			return fmt.Errorf("game ID %q must be printable ASCII", id)
		}
	}
	copy(h.raw[:len(id)], id)
	h.GameID = string(bytes.TrimRight(h.raw[:GameIDSize], "\x00"))
	return nil
}

// SetTitle replaces the game title field, zero filling the rest of it.
func (h *Header) SetTitle(title string) error {
	if len(title) >= TitleSize {
		return fmt.Errorf("title is %d bytes, must be less than %d", len(title), TitleSize)
	}
	if bytes.IndexByte([]byte(title), 0) >= 0 {
		return fmt.Errorf("title must not contain NUL bytes")
	}
	field := h.raw[TitleOffset : TitleOffset+TitleSize]
	clear(field)
	copy(field, title)
	h.Title = title
	return nil
}

// Bytes encodes the header, patching the boot block fields into the raw copy.
func (h *Header) Bytes() []byte {
	out := make([]byte, HeaderSize)
	copy(out, h.raw[:])
	common.PutUint32BE(out, offsetDOL, h.DOLOffset)
	common.PutUint32BE(out, offsetFST, h.FSTOffset)
	common.PutUint32BE(out, offsetFSTSize, h.FSTSize)
	common.PutUint32BE(out, offsetMaxFSTSize, h.MaxFSTSize)
	return out
}

// WriteHeader writes the encoded header at offset 0.
func WriteHeader(w io.WriterAt, h *Header) error {
	if _, err := w.WriteAt(h.Bytes(), 0); err != nil {
		return ioErr(RegionHeader, 0, err)
	}
	return nil
}

// Uint32Field encodes value for a single big-endian header field write.
func Uint32Field(value uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return buf[:]
}
