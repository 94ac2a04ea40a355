package gcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeaderBytes(t *testing.T) []byte {
	t.Helper()
	h, err := NewHeader("GALE01", "Super Smash Bros. Melee")
	require.NoError(t, err)
	h.DOLOffset = 0x1E800
	h.FSTOffset = 0x456E00
	h.FSTSize = 0x7529
	h.MaxFSTSize = 0x7529
	data := h.Bytes()
	// bytes this package does not interpret
	data[offsetDiscNumber] = 1
	data[offsetVersion] = 2
	data[0x500] = 0xAB
	data[HeaderSize-1] = 0xCD
	return data
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(testHeaderBytes(t))
	require.NoError(t, err)

	assert.Equal(t, "GALE01", h.GameID)
	assert.Equal(t, "Super Smash Bros. Melee", h.Title)
	assert.Equal(t, byte(1), h.DiscNumber)
	assert.Equal(t, byte(2), h.Version)
	assert.Equal(t, uint32(0x1E800), h.DOLOffset)
	assert.Equal(t, uint32(0x456E00), h.FSTOffset)
	assert.Equal(t, uint32(0x7529), h.FSTSize)
	assert.Equal(t, uint32(0x7529), h.MaxFSTSize)
}

func TestParseHeader_BadMagic(t *testing.T) {
	data := testHeaderBytes(t)
	binary.BigEndian.PutUint32(data[offsetMagic:], 0xDEADBEEF)

	_, err := ParseHeader(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadMagic))

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, RegionHeader, fe.Region)
	assert.Equal(t, int64(offsetMagic), fe.Offset)
}

func TestParseHeader_Short(t *testing.T) {
	_, err := ParseHeader(make([]byte, 0x100))
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestReadHeader_ShortImage(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(make([]byte, 0x10)))
	var ioe *IOError
	require.True(t, errors.As(err, &ioe))
	assert.Equal(t, RegionHeader, ioe.Region)
}

func TestHeaderBytes_PreservesUnknownBytes(t *testing.T) {
	data := testHeaderBytes(t)
	h, err := ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, data, h.Bytes())

	h.FSTSize = 0x8000
	out := h.Bytes()
	assert.Equal(t, uint32(0x8000), binary.BigEndian.Uint32(out[offsetFSTSize:]))
	assert.Equal(t, byte(0xAB), out[0x500])
	assert.Equal(t, byte(0xCD), out[HeaderSize-1])
}

func TestSetGameID_FourCharacters(t *testing.T) {
	data := testHeaderBytes(t)
	h, err := ParseHeader(data)
	require.NoError(t, err)

	require.NoError(t, h.SetGameID("GTME"))
	out := h.Bytes()

	assert.Equal(t, "GTME01", h.GameID)
	assert.Equal(t, []byte("GTME"), out[:4])
	for i := range data {
		if i < 4 {
			continue
		}
		if data[i] != out[i] {
			t.Fatalf("byte 0x%X changed from 0x%02X to 0x%02X", i, data[i], out[i])
		}
	}
}

func TestSetGameID_Invalid(t *testing.T) {
	h, err := NewHeader("GALE01", "")
	require.NoError(t, err)

	for _, id := range []string{"", "ABC", "ABCDE", "ABCDEFG", "AB\x01D"} {
		assert.Error(t, h.SetGameID(id), "id %q", id)
	}
	assert.Equal(t, "GALE01", h.GameID)
}

func TestSetTitle(t *testing.T) {
	h, err := ParseHeader(testHeaderBytes(t))
	require.NoError(t, err)

	require.NoError(t, h.SetTitle("Training Mode"))
	out := h.Bytes()
	assert.Equal(t, "Training Mode", h.Title)
	assert.Equal(t, []byte("Training Mode"), out[TitleOffset:TitleOffset+13])
	assert.Equal(t, make([]byte, TitleSize-13), out[TitleOffset+13:TitleOffset+TitleSize])

	assert.Error(t, h.SetTitle(string(make([]byte, TitleSize))))
	assert.Error(t, h.SetTitle("a\x00b"))
}

func TestUint32Field(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x45, 0x6E, 0x00}, Uint32Field(0x456E00))
}

func testApploader(code, trailer uint32) []byte {
	data := make([]byte, ApploaderHeaderSize+code+trailer)
	copy(data, "2001/11/14")
	binary.BigEndian.PutUint32(data[apploaderEntryPoint:], 0x81200000)
	binary.BigEndian.PutUint32(data[apploaderCodeSize:], code)
	binary.BigEndian.PutUint32(data[apploaderTrailerSize:], trailer)
	return data
}

func TestParseApploader(t *testing.T) {
	a, err := ParseApploader(testApploader(0x1234, 0x10))
	require.NoError(t, err)

	assert.Equal(t, "2001/11/14", a.Date)
	assert.Equal(t, uint32(0x81200000), a.EntryPoint)
	assert.Equal(t, uint32(0x1234), a.CodeSize)
	assert.Equal(t, uint32(0x10), a.TrailerSize)
	// 0x20 + 0x1234 + 0x10 = 0x1264, rounded to 32
	assert.Equal(t, uint32(0x1280), a.TotalSize())
}

func TestParseApploader_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, 0x10)},
		{"zero code", testApploader(0, 0)},
		{"oversize", func() []byte {
			d := testApploader(4, 0)
			binary.BigEndian.PutUint32(d[apploaderCodeSize:], MaxApploaderSize)
			return d
		}()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseApploader(tc.data)
			assert.True(t, errors.Is(err, ErrBadApploader), "got %v", err)
		})
	}
}

func TestReadApploader(t *testing.T) {
	image := make([]byte, ApploaderOffset)
	image = append(image, testApploader(0x100, 0)...)

	a, err := ReadApploader(bytes.NewReader(image), ApploaderOffset)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x120), a.TotalSize())
}

func TestApploaderBytes(t *testing.T) {
	data := testApploader(0x1234, 0x10)
	a, err := ParseApploader(data)
	require.NoError(t, err)
	assert.Equal(t, data[:ApploaderHeaderSize], a.Bytes())

	a.CodeSize = 0x40
	back, err := ParseApploader(a.Bytes())
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func testDOL(sections map[int][2]uint32, bssSize uint32) []byte {
	data := make([]byte, DOLHeaderSize)
	end := uint32(DOLHeaderSize)
	for i, s := range sections {
		binary.BigEndian.PutUint32(data[dolOffsets+i*4:], s[0])
		binary.BigEndian.PutUint32(data[dolAddresses+i*4:], 0x80003100+uint32(i)*0x1000)
		binary.BigEndian.PutUint32(data[dolSizes+i*4:], s[1])
		if s[0]+s[1] > end {
			end = s[0] + s[1]
		}
	}
	binary.BigEndian.PutUint32(data[dolBSSAddr:], 0x80400000)
	binary.BigEndian.PutUint32(data[dolBSSSize:], bssSize)
	binary.BigEndian.PutUint32(data[dolEntry:], 0x80003100)
	out := make([]byte, end)
	copy(out, data)
	return out
}

func TestParseDOL(t *testing.T) {
	data := testDOL(map[int][2]uint32{
		0:               {0x100, 0x2000},
		DOLTextSections: {0x2100, 0x404},
		DOLSections - 1: {0x2520, 0x10},
	}, 0x100000)

	d, err := ParseDOL(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80003100), d.EntryPoint)
	assert.Equal(t, uint32(0x100000), d.BSSSize)
	assert.Equal(t, uint32(0x2000), d.Sections[0].Size)
	// max end 0x2530, BSS ignored
	assert.Equal(t, uint32(0x2540), d.TotalSize())
}

func TestDOLBytes(t *testing.T) {
	data := testDOL(map[int][2]uint32{
		0:               {0x100, 0x2000},
		DOLTextSections: {0x2100, 0x404},
	}, 0x100000)
	d, err := ParseDOL(data)
	require.NoError(t, err)
	assert.Equal(t, data[:DOLHeaderSize], d.Bytes())

	d.Sections[1] = DOLSection{Offset: 0x2520, Address: 0x80100000, Size: 0x20}
	back, err := ParseDOL(d.Bytes())
	require.NoError(t, err)
	assert.Equal(t, d, back)
	assert.Equal(t, uint32(0x2540), back.TotalSize())
}

func TestParseDOL_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, 0x80)},
		{"no sections", make([]byte, DOLHeaderSize)},
		{"overlaps header", testDOL(map[int][2]uint32{0: {0x80, 0x100}}, 0)},
		{"overflow", func() []byte {
			d := testDOL(map[int][2]uint32{0: {0x100, 0x10}}, 0)
			binary.BigEndian.PutUint32(d[dolOffsets:], 0xFFFFFFF0)
			binary.BigEndian.PutUint32(d[dolSizes:], 0x20)
			return d
		}()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDOL(tc.data)
			assert.True(t, errors.Is(err, ErrBadDOL), "got %v", err)
		})
	}
}

func TestReadDOL_OutOfRange(t *testing.T) {
	_, err := ReadDOL(bytes.NewReader(make([]byte, 0x80)), 0x40)
	var ioe *IOError
	require.True(t, errors.As(err, &ioe))
	assert.Equal(t, RegionDOL, ioe.Region)
	assert.Equal(t, int64(0x40), ioe.Offset)
}
