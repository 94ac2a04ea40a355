package disc

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hansbonini/gcmtools/pkg/gcm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listTree returns every path under dir with a trailing slash on directories.
func listTree(t *testing.T, p *MemProvider, dir string) []string {
	t.Helper()
	entries, err := p.ListDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		name := e.Name
		if dir != "" {
			name = dir + "/" + e.Name
		}
		if e.Kind == HostDirectory {
			out = append(out, name+"/")
			out = append(out, listTree(t, p, name)...)
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func TestRebuildExtract_RoundTrip(t *testing.T) {
	files := map[string][]byte{
		"opening.bnr":          fill(0x10, 0x1960),
		"audio/bgm.hps":        fill(0x20, 333),
		"audio/se/hit.ssm":     fill(0x30, 1),
		"audio/se/empty.ssm":   {},
		"Movie/intro.thp":      fill(0x40, 4097),
		"zz/deep/er/still.bin": fill(0x50, 64),
	}
	src := hostRoot(t, files)
	require.NoError(t, src.CreateDir("nothing/here"))

	img, plan := buildImage(t, src, DefaultLayoutOptions())
	out := extractAll(t, img)

	want := listTree(t, src, "")
	got := listTree(t, out, "")
	assert.Equal(t, want, got)

	for name, data := range files {
		extracted, err := out.ReadFile(name)
		require.NoError(t, err, name)
		assert.Equal(t, data, extracted, name)
	}

	_, app, dol := testSystemFiles(t)
	gotApp, err := out.ReadFile(SpecialApploader.SpecialPath())
	require.NoError(t, err)
	assert.Equal(t, app, gotApp)
	gotDOL, err := out.ReadFile(SpecialBoot.SpecialPath())
	require.NoError(t, err)
	assert.Equal(t, dol, gotDOL)

	gotHdr, err := out.ReadFile(SpecialHeader.SpecialPath())
	require.NoError(t, err)
	h, err := gcm.ParseHeader(gotHdr)
	require.NoError(t, err)
	assert.Equal(t, "GTST01", h.GameID)
	assert.Equal(t, uint32(plan.Boot.Offset), h.DOLOffset)
	assert.Equal(t, uint32(plan.FST.Offset), h.FSTOffset)
	assert.Equal(t, uint32(plan.FST.Size), h.FSTSize)
	assert.Equal(t, uint32(plan.FSTCapacity), h.MaxFSTSize)
	assert.Equal(t, byte(0x5A), gotHdr[0x500])
}

func TestRebuild_FromImageIsStable(t *testing.T) {
	img, _ := buildImage(t, hostRoot(t, map[string][]byte{
		"a.bin":   fill(1, 10),
		"b/c.bin": fill(2, 20),
	}), DefaultLayoutOptions())

	tree, _, err := FromImage(img, img.size())
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = Rebuild(&buf, img, tree, DefaultLayoutOptions())
	require.NoError(t, err)
	assert.Equal(t, img.data, buf.Bytes())
}

func TestSerialize_ShortSource(t *testing.T) {
	p := hostRoot(t, map[string][]byte{"a.bin": fill(1, 10)})
	tree, err := FromHost(p, HostOptions{})
	require.NoError(t, err)
	n, err := tree.Lookup("a.bin")
	require.NoError(t, err)
	ext := n.Source.(External)
	ext.Size = 12
	n.Source = ext

	plan, err := PlanLayout(tree, DefaultLayoutOptions())
	require.NoError(t, err)
	_, err = Serialize(&bytes.Buffer{}, nil, tree, plan)
	var ioe *gcm.IOError
	require.True(t, errors.As(err, &ioe), "got %v", err)
	assert.Equal(t, gcm.RegionFileData, ioe.Region)
}

func TestExtract_RefusesNonEmpty(t *testing.T) {
	img, _ := buildImage(t, hostRoot(t, map[string][]byte{"a.bin": fill(1, 10)}), DefaultLayoutOptions())
	tree, _, err := FromImage(img, img.size())
	require.NoError(t, err)

	dst := NewMemProvider()
	require.NoError(t, dst.WriteFile("old.txt", []byte("x")))

	_, err = Extract(img, tree, dst, ExtractOptions{})
	assert.True(t, errors.Is(err, gcm.ErrRootNotEmpty))
	_, err = dst.ReadFile("a.bin")
	assert.Error(t, err)

	stats, err := Extract(img, tree, dst, ExtractOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, ExtractStats{Files: 1, Dirs: 0, Bytes: 10}, stats)
	data, err := dst.ReadFile("a.bin")
	require.NoError(t, err)
	assert.Equal(t, fill(1, 10), data)
}

func TestExtract_NoTableOfContents(t *testing.T) {
	img, _ := buildImage(t, hostRoot(t, nil), DefaultLayoutOptions())
	out := extractAll(t, img)
	assert.Equal(t, []string{
		"&&systemdata/",
		"&&systemdata/AppLoader.ldr",
		"&&systemdata/ISO.hdr",
		"&&systemdata/Start.dol",
	}, listTree(t, out, ""))
}

func TestOSProvider_RoundTrip(t *testing.T) {
	img, _ := buildImage(t, hostRoot(t, map[string][]byte{
		"dir/a.bin": fill(1, 100),
		"b.bin":     fill(2, 7),
	}), DefaultLayoutOptions())
	tree, _, err := FromImage(img, img.size())
	require.NoError(t, err)

	root := t.TempDir()
	host := NewOSProvider(root)
	_, err = Extract(img, tree, host, ExtractOptions{})
	require.NoError(t, err)

	rebuilt, err := FromHost(host, HostOptions{Strict: true})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = Rebuild(&buf, nil, rebuilt, DefaultLayoutOptions())
	require.NoError(t, err)
	assert.Equal(t, img.data, buf.Bytes())
}

func TestExtract_NonStrictRecordsFailures(t *testing.T) {
	img, _ := buildImage(t, hostRoot(t, map[string][]byte{
		"dir/a.bin": fill(1, 10),
		"b.bin":     fill(2, 7),
	}), DefaultLayoutOptions())
	tree, _, err := FromImage(img, img.size())
	require.NoError(t, err)

	blocked := func() *MemProvider {
		p := NewMemProvider()
		require.NoError(t, p.WriteFile("dir", []byte("in the way")))
		return p
	}

	dst := blocked()
	stats, err := Extract(img, tree, dst, ExtractOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir", "dir/a.bin"}, stats.Failed)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, int64(7), stats.Bytes)
	data, err := dst.ReadFile("b.bin")
	require.NoError(t, err)
	assert.Equal(t, fill(2, 7), data)
	_, err = dst.ReadFile(SpecialBoot.SpecialPath())
	assert.NoError(t, err)

	_, err = Extract(img, tree, blocked(), ExtractOptions{Force: true, Strict: true})
	var pe *gcm.PathError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "dir", pe.Path)
	assert.True(t, errors.Is(err, fs.ErrExist))
}

func TestExtract_ImageReadFailureIsFatal(t *testing.T) {
	img, plan := buildImage(t, hostRoot(t, map[string][]byte{"a.bin": fill(1, 10)}), DefaultLayoutOptions())
	tree, _, err := FromImage(img, img.size())
	require.NoError(t, err)

	short := &memImage{data: img.data[:plan.DataStart]}
	_, err = Extract(short, tree, NewMemProvider(), ExtractOptions{})
	var ioe *gcm.IOError
	assert.True(t, errors.As(err, &ioe), "got %v", err)
}

func TestFromImage_RejectsEscapingName(t *testing.T) {
	img, plan := buildImage(t, hostRoot(t, map[string][]byte{"zz/evil.bin": fill(1, 4)}), DefaultLayoutOptions())
	fstData := img.data[plan.FST.Offset : plan.FST.Offset+plan.FST.Size]
	i := bytes.Index(fstData, []byte("zz\x00evil.bin\x00"))
	require.GreaterOrEqual(t, i, 0)
	copy(fstData[i:], "..")

	_, _, err := FromImage(img, img.size())
	assert.True(t, errors.Is(err, gcm.ErrMalformedFST), "got %v", err)
}

func TestOSProvider_StaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	host := NewOSProvider(root)
	require.NoError(t, host.CreateDir(""))

	for _, name := range []string{"..", "../escape.bin", "a/../../escape.bin", "/escape.bin", "./a", "a//b"} {
		_, err := host.CreateFile(name)
		assert.True(t, errors.Is(err, gcm.ErrInvalidName), "create %q: %v", name, err)
		assert.True(t, errors.Is(host.CreateDir(name), gcm.ErrInvalidName), "mkdir %q", name)
		_, err = host.OpenFile(name)
		assert.True(t, errors.Is(err, gcm.ErrInvalidName), "open %q: %v", name, err)
		_, err = host.ListDir(name)
		assert.True(t, errors.Is(err, gcm.ErrInvalidName), "list %q: %v", name, err)
	}
	_, err := os.Stat(filepath.Join(parent, "escape.bin"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, host.CreateDir("a/b"))
	w, err := host.CreateFile("a/b/c.bin")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	entries, err := host.ListDir("a")
	require.NoError(t, err)
	assert.Equal(t, []HostEntry{{Name: "b", Kind: HostDirectory}}, entries)
}
