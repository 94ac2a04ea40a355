// Package disc holds the host-independent disc tree and everything that
// turns it into bytes: the layout planner, the serializer, the extractor
// and the in-place edit engine.
package disc

import (
	"fmt"
	"io"
)

// Source is where a file's content comes from. It is either InImage or
// External.
type Source interface {
	// Open returns a reader over the content. image is the disc the tree
	// was decoded from; External sources ignore it.
	Open(image io.ReaderAt) (io.ReadCloser, error)
	// Len returns the content length in bytes.
	Len() int64

	source()
}

// InImage is a byte range inside the image a tree was decoded from.
type InImage struct {
	Offset int64
	Size   int64
}

func (s InImage) source() {}

// Len implements Source.
func (s InImage) Len() int64 { return s.Size }

// End returns the offset one past the range.
func (s InImage) End() int64 { return s.Offset + s.Size }

// Open implements Source.
func (s InImage) Open(image io.ReaderAt) (io.ReadCloser, error) {
	if image == nil {
		return nil, fmt.Errorf("range 0x%X+0x%X has no source image", s.Offset, s.Size)
	}
	return io.NopCloser(io.NewSectionReader(image, s.Offset, s.Size)), nil
}

func (s InImage) String() string { return fmt.Sprintf("image[0x%X+0x%X]", s.Offset, s.Size) }

// External is content not yet placed on the disc, read from a host provider.
type External struct {
	Provider HostProvider
	Path     string
	Size     int64
}

func (s External) source() {}

// Len implements Source.
func (s External) Len() int64 { return s.Size }

// Open implements Source.
func (s External) Open(io.ReaderAt) (io.ReadCloser, error) {
	f, err := s.Provider.OpenFile(s.Path)
	if err != nil {
		return nil, err
	}
	if f.Size() != s.Size {
		f.Close()
		return nil, fmt.Errorf("host file %s changed size from %d to %d bytes", s.Path, s.Size, f.Size())
	}
	return f, nil
}

func (s External) String() string { return "host:" + s.Path }

// NewExternal opens path once to record its size.
func NewExternal(p HostProvider, path string) (External, error) {
	f, err := p.OpenFile(path)
	if err != nil {
		return External{}, err
	}
	defer f.Close()
	return External{Provider: p, Path: path, Size: f.Size()}, nil
}

// readSource reads the whole content of a small source such as the header.
func readSource(image io.ReaderAt, src Source) ([]byte, error) {
	rc, err := src.Open(image)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data := make([]byte, src.Len())
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, err
	}
	return data, nil
}

// copySource streams exactly src.Len() bytes of src into w.
func copySource(w io.Writer, image io.ReaderAt, src Source, buf []byte) error {
	rc, err := src.Open(image)
	if err != nil {
		return err
	}
	defer rc.Close()
	n, err := io.CopyBuffer(w, io.LimitReader(rc, src.Len()), buf)
	if err != nil {
		return err
	}
	if n != src.Len() {
		return fmt.Errorf("%v: got %d of %d bytes: %w", src, n, src.Len(), io.ErrUnexpectedEOF)
	}
	return nil
}
