package disc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// HostEntryKind classifies a host directory entry.
type HostEntryKind uint8

const (
	HostRegular HostEntryKind = iota
	HostDirectory
	HostOther // symlinks, devices, sockets
)

// HostEntry is one entry of a host directory listing.
type HostEntry struct {
	Name string
	Kind HostEntryKind
	Size int64
}

// HostFile is an open host file with a known length.
type HostFile interface {
	io.ReadCloser
	Size() int64
}

// HostProvider is the host filesystem as the disc code sees it. Paths are
// slash separated and relative to the provider's root; "" is the root.
type HostProvider interface {
	CreateDir(path string) error
	CreateFile(path string) (io.WriteCloser, error)
	OpenFile(path string) (HostFile, error)
	ListDir(path string) ([]HostEntry, error)
}

// OSProvider is a HostProvider rooted at a directory of the local filesystem.
type OSProvider struct {
	Root string
}

// NewOSProvider returns a provider rooted at root.
func NewOSProvider(root string) *OSProvider {
	return &OSProvider{Root: root}
}

// abs maps name onto the host. Names that could reach outside Root are
// refused.
func (p *OSProvider) abs(op, name string) (string, error) {
	if name == "" {
		return p.Root, nil
	}
	local := filepath.FromSlash(name)
	if !fs.ValidPath(name) || !filepath.IsLocal(local) {
		return "", &fs.PathError{Op: op, Path: name, Err: gcm.ErrInvalidName}
	}
	return filepath.Join(p.Root, local), nil
}

// CreateDir creates the directory and any missing parents.
func (p *OSProvider) CreateDir(name string) error {
	dir, err := p.abs("mkdir", name)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// CreateFile creates or truncates a file.
func (p *OSProvider) CreateFile(name string) (io.WriteCloser, error) {
	file, err := p.abs("create", name)
	if err != nil {
		return nil, err
	}
	return os.Create(file)
}

type osFile struct {
	*os.File
	size int64
}

func (f *osFile) Size() int64 { return f.size }

// OpenFile opens a regular file for reading.
func (p *OSProvider) OpenFile(name string) (HostFile, error) {
	file, err := p.abs("open", name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", name, errNotRegular)
	}
	return &osFile{File: f, size: info.Size()}, nil
}

// ListDir lists a directory without following symlinks.
func (p *OSProvider) ListDir(name string) ([]HostEntry, error) {
	dir, err := p.abs("readdir", name)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]HostEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := HostEntry{Name: de.Name(), Kind: HostOther}
		switch {
		case de.Type().IsRegular():
			info, err := de.Info()
			if err != nil {
				return nil, err
			}
			e.Kind = HostRegular
			e.Size = info.Size()
		case de.IsDir():
			e.Kind = HostDirectory
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var errNotRegular = errors.New("not a regular file")

// MemProvider is an in-memory HostProvider.
type MemProvider struct {
	files  map[string][]byte
	dirs   map[string]bool
	others map[string]bool
}

// NewMemProvider returns an empty provider holding only its root.
func NewMemProvider() *MemProvider {
	return &MemProvider{
		files:  map[string][]byte{},
		dirs:   map[string]bool{"": true},
		others: map[string]bool{},
	}
}

func cleanPath(name string) string {
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

func parentPath(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return ""
	}
	return dir
}

func (p *MemProvider) exists(name string) bool {
	_, isFile := p.files[name]
	return isFile || p.dirs[name] || p.others[name]
}

// CreateDir creates the directory and any missing parents.
func (p *MemProvider) CreateDir(name string) error {
	name = cleanPath(name)
	for dir := name; ; dir = parentPath(dir) {
		if _, isFile := p.files[dir]; isFile || p.others[dir] {
			return &fs.PathError{Op: "mkdir", Path: dir, Err: fs.ErrExist}
		}
		p.dirs[dir] = true
		if dir == "" {
			return nil
		}
	}
}

// CreateFile creates or truncates a file. The content becomes visible when
// the writer is closed.
func (p *MemProvider) CreateFile(name string) (io.WriteCloser, error) {
	name = cleanPath(name)
	if !p.dirs[parentPath(name)] {
		return nil, &fs.PathError{Op: "create", Path: name, Err: fs.ErrNotExist}
	}
	if p.dirs[name] || p.others[name] {
		return nil, &fs.PathError{Op: "create", Path: name, Err: fs.ErrExist}
	}
	return &memWriter{p: p, name: name}, nil
}

type memWriter struct {
	p    *MemProvider
	name string
	buf  bytes.Buffer
}

func (w *memWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *memWriter) Close() error {
	w.p.files[w.name] = append([]byte{}, w.buf.Bytes()...)
	return nil
}

type memFile struct {
	*bytes.Reader
	size int64
}

func (f *memFile) Size() int64  { return f.size }
func (f *memFile) Close() error { return nil }

// OpenFile opens a file for reading.
func (p *MemProvider) OpenFile(name string) (HostFile, error) {
	name = cleanPath(name)
	data, ok := p.files[name]
	if !ok {
		if p.exists(name) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: errNotRegular}
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &memFile{Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

// ListDir lists the direct children of a directory sorted by name.
func (p *MemProvider) ListDir(name string) ([]HostEntry, error) {
	name = cleanPath(name)
	if !p.dirs[name] {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	var entries []HostEntry
	for f, data := range p.files {
		if f != "" && parentPath(f) == name {
			entries = append(entries, HostEntry{Name: path.Base(f), Kind: HostRegular, Size: int64(len(data))})
		}
	}
	for d := range p.dirs {
		if d != "" && parentPath(d) == name {
			entries = append(entries, HostEntry{Name: path.Base(d), Kind: HostDirectory})
		}
	}
	for o := range p.others {
		if parentPath(o) == name {
			entries = append(entries, HostEntry{Name: path.Base(o), Kind: HostOther})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// WriteFile stores data at name, creating parent directories.
func (p *MemProvider) WriteFile(name string, data []byte) error {
	name = cleanPath(name)
	if err := p.CreateDir(parentPath(name)); err != nil {
		return err
	}
	if p.dirs[name] || p.others[name] {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrExist}
	}
	p.files[name] = append([]byte{}, data...)
	return nil
}

// ReadFile returns the content stored at name.
func (p *MemProvider) ReadFile(name string) ([]byte, error) {
	data, ok := p.files[cleanPath(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return data, nil
}

// AddSpecial records an entry that is neither a file nor a directory, the
// way a symlink or device node shows up in a listing.
func (p *MemProvider) AddSpecial(name string) error {
	name = cleanPath(name)
	if err := p.CreateDir(parentPath(name)); err != nil {
		return err
	}
	p.others[name] = true
	return nil
}
