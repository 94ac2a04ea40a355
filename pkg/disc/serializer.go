package disc

import (
	"fmt"
	"io"
	"sort"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// copyChunk bounds the scratch buffer of every streaming copy.
const copyChunk = 1 << 20

// offsetWriter tracks the absolute position of a sequential writer.
type offsetWriter struct {
	w   io.Writer
	pos int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}

func (w *offsetWriter) padTo(offset int64, region string) error {
	if offset < w.pos {
		return fmt.Errorf("%s at 0x%X overlaps data ending at 0x%X", region, offset, w.pos)
	}
	if err := common.WriteZeros(w, offset-w.pos); err != nil {
		return &gcm.IOError{Region: region, Offset: w.pos, Err: err}
	}
	return nil
}

// Serialize writes a planned image sequentially. image backs any InImage
// sources and may be nil for trees built from a host. It returns the
// number of bytes written.
func Serialize(w io.Writer, image io.ReaderAt, t *Tree, p *Plan) (int64, error) {
	ow := &offsetWriter{w: w}
	buf := make([]byte, copyChunk)

	raw, err := readSource(image, t.Header)
	if err != nil {
		return ow.pos, &gcm.IOError{Region: gcm.RegionHeader, Err: err}
	}
	h, err := patchHeader(raw, p.Boot, p.FST, p.FSTCapacity)
	if err != nil {
		return ow.pos, err
	}
	if _, err := ow.Write(h.Bytes()); err != nil {
		return ow.pos, &gcm.IOError{Region: gcm.RegionHeader, Err: err}
	}

	specials := []struct {
		region string
		src    Source
		at     Region
	}{
		{gcm.RegionApploader, t.Apploader, p.Apploader},
		{gcm.RegionDOL, t.Boot, p.Boot},
	}
	for _, s := range specials {
		if err := ow.padTo(s.at.Offset, s.region); err != nil {
			return ow.pos, err
		}
		if err := copySource(ow, image, s.src, buf); err != nil {
			return ow.pos, &gcm.IOError{Region: s.region, Offset: s.at.Offset, Err: err}
		}
	}

	fstData, err := p.Table.Encode()
	if err != nil {
		return ow.pos, err
	}
	if err := ow.padTo(p.FST.Offset, gcm.RegionFST); err != nil {
		return ow.pos, err
	}
	if _, err := ow.Write(fstData); err != nil {
		return ow.pos, &gcm.IOError{Region: gcm.RegionFST, Offset: p.FST.Offset, Err: err}
	}

	files := append([]Placement(nil), p.Files...)
	sort.SliceStable(files, func(i, j int) bool { return files[i].Offset < files[j].Offset })
	for _, f := range files {
		if err := ow.padTo(f.Offset, f.Path); err != nil {
			return ow.pos, err
		}
		if err := copySource(ow, image, f.Node.Source, buf); err != nil {
			return ow.pos, &gcm.IOError{Region: gcm.RegionFileData, Offset: f.Offset, Err: fmt.Errorf("%s: %w", f.Path, err)}
		}
	}
	if err := ow.padTo(p.ImageSize, gcm.RegionFileData); err != nil {
		return ow.pos, err
	}
	return ow.pos, nil
}

// Rebuild plans a full layout for t and serializes it to w.
func Rebuild(w io.Writer, image io.ReaderAt, t *Tree, opts LayoutOptions) (*Plan, error) {
	p, err := PlanLayout(t, opts)
	if err != nil {
		return nil, err
	}
	if _, err := Serialize(w, image, t, p); err != nil {
		return nil, err
	}
	return p, nil
}
