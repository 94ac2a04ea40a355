package common

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Align rounds value up to the next multiple of alignment.
// alignment must be a power of two.
func Align(value, alignment uint32) uint32 {
	mask := alignment - 1
	return (value + mask) &^ mask
}

// Align64 is Align for image-sized values.
func Align64(value int64, alignment uint32) int64 {
	mask := int64(alignment) - 1
	return (value + mask) &^ mask
}

// IsPowerOfTwo reports whether value is a non-zero power of two.
func IsPowerOfTwo(value uint32) bool {
	return value != 0 && value&(value-1) == 0
}

// PutUint32BE writes value into data at offset in big-endian order
func PutUint32BE(data []byte, offset int, value uint32) {
	binary.BigEndian.PutUint32(data[offset:offset+4], value)
}

// ReadBytesAt reads exactly count bytes at offset
func ReadBytesAt(reader io.ReaderAt, offset int64, count int) ([]byte, error) {
	buffer := make([]byte, count)
	n, err := reader.ReadAt(buffer, offset)
	if n == count {
		return buffer, nil
	}
	if err == nil || err == io.EOF {
		return nil, fmt.Errorf("expected to read %d bytes at 0x%X, got %d: %w", count, offset, n, io.ErrUnexpectedEOF)
	}
	return nil, err
}

// CString returns the NUL-terminated string starting at data[0].
// ok is false when no terminator is present.
func CString(data []byte) (s string, ok bool) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), true
		}
	}
	return "", false
}

// WriteZeros writes count zero bytes to writer
func WriteZeros(writer io.Writer, count int64) error {
	if count <= 0 {
		return nil
	}
	var zeros [4096]byte
	for count > 0 {
		n := int64(len(zeros))
		if n > count {
			n = count
		}
		if _, err := writer.Write(zeros[:n]); err != nil {
			return err
		}
		count -= n
	}
	return nil
}
