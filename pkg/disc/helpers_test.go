package disc

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/hansbonini/gcmtools/pkg/gcm"
	"github.com/stretchr/testify/require"
)

// memImage is an in-memory Image that records every write.
type memImage struct {
	data   []byte
	writes []Region
}

func (m *memImage) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memImage) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[off:], p)
	m.writes = append(m.writes, Region{Offset: off, Size: int64(len(p))})
	return len(p), nil
}

func (m *memImage) Truncate(size int64) error {
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	return nil
}

func (m *memImage) size() int64 { return int64(len(m.data)) }

// testSystemFiles returns a header, an apploader and a DOL small enough to
// keep test images in the tens of kilobytes.
func testSystemFiles(t *testing.T) (hdr, app, dol []byte) {
	t.Helper()
	h, err := gcm.NewHeader("GTST01", "Test Disc")
	require.NoError(t, err)
	hdr = h.Bytes()
	hdr[0x500] = 0x5A

	app = make([]byte, 0x60)
	copy(app, "2004/01/01")
	binary.BigEndian.PutUint32(app[0x10:], 0x81200000)
	binary.BigEndian.PutUint32(app[0x14:], 0x40)
	for i := 0x20; i < len(app); i++ {
		app[i] = byte(i)
	}

	dol = make([]byte, 0x180)
	binary.BigEndian.PutUint32(dol[0x00:], 0x100)
	binary.BigEndian.PutUint32(dol[0x48:], 0x80003100)
	binary.BigEndian.PutUint32(dol[0x90:], 0x80)
	binary.BigEndian.PutUint32(dol[0xE0:], 0x80003100)
	for i := 0x100; i < len(dol); i++ {
		dol[i] = byte(0xFF - i)
	}
	return hdr, app, dol
}

// fill returns n bytes of a pattern seeded by b.
func fill(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b + byte(i)
	}
	return out
}

// hostRoot returns a provider holding the system files and the given files.
func hostRoot(t *testing.T, files map[string][]byte) *MemProvider {
	t.Helper()
	hdr, app, dol := testSystemFiles(t)
	p := NewMemProvider()
	require.NoError(t, p.WriteFile(SpecialHeader.SpecialPath(), hdr))
	require.NoError(t, p.WriteFile(SpecialApploader.SpecialPath(), app))
	require.NoError(t, p.WriteFile(SpecialBoot.SpecialPath(), dol))
	for name, data := range files {
		require.NoError(t, p.WriteFile(name, data))
	}
	return p
}

// buildImage rebuilds a host provider into an in-memory image.
func buildImage(t *testing.T, p HostProvider, opts LayoutOptions) (*memImage, *Plan) {
	t.Helper()
	tree, err := FromHost(p, HostOptions{})
	require.NoError(t, err)
	var buf bytes.Buffer
	plan, err := Rebuild(&buf, nil, tree, opts)
	require.NoError(t, err)
	require.Equal(t, plan.ImageSize, int64(buf.Len()))
	return &memImage{data: buf.Bytes()}, plan
}

// openImage decodes an in-memory image.
func openImage(t *testing.T, img *memImage) *Disc {
	t.Helper()
	d, err := Open(img, img.size())
	require.NoError(t, err)
	return d
}

// extractAll extracts an image into a fresh provider.
func extractAll(t *testing.T, img *memImage) *MemProvider {
	t.Helper()
	tree, _, err := FromImage(img, img.size())
	require.NoError(t, err)
	out := NewMemProvider()
	_, err = Extract(img, tree, out, ExtractOptions{})
	require.NoError(t, err)
	return out
}

// fileAt returns the offset of a file in the image's FST.
func fileAt(t *testing.T, d *Disc, path string) int64 {
	t.Helper()
	i, ok := d.Table.Lookup(path)
	require.True(t, ok, path)
	return int64(d.Table.Entries[i].Offset)
}

// planEdit plans and applies ops, returning the plan.
func planEdit(t *testing.T, img *memImage, ops ...Op) *EditPlan {
	t.Helper()
	plan, err := PlanEdit(openImage(t, img), ops, DefaultEditOptions())
	require.NoError(t, err)
	img.writes = nil
	require.NoError(t, ApplyPlan(img, plan))
	return plan
}

// external stores data in its own provider and returns a source for it.
func external(t *testing.T, data []byte) External {
	t.Helper()
	p := NewMemProvider()
	require.NoError(t, p.WriteFile("src.bin", data))
	src, err := NewExternal(p, "src.bin")
	require.NoError(t, err)
	return src
}
