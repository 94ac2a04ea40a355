package disc

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/fst"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// NodeKind tags a tree node as a file or a directory.
type NodeKind uint8

const (
	FileNode NodeKind = iota
	DirNode
)

// Node is a file or directory of a disc tree. Files carry a Source and
// directories carry ordered Children.
type Node struct {
	Kind     NodeKind
	Name     string
	Source   Source
	Children []*Node

	parent *Node
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n.Kind == DirNode }

// Parent returns the enclosing directory, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Path returns the slash-separated path from the root.
func (n *Node) Path() string {
	var parts []string
	for ; n != nil && n.parent != nil; n = n.parent {
		parts = append(parts, n.Name)
	}
	for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
		parts[l], parts[r] = parts[r], parts[l]
	}
	return strings.Join(parts, "/")
}

// Child returns the direct child called name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) add(c *Node) {
	c.parent = n
	n.Children = append(n.Children, c)
}

func (n *Node) remove(c *Node) {
	for i, x := range n.Children {
		if x == c {
			n.Children = append(n.Children[:i:i], n.Children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

// Special names one of the three disc regions that are addressed by name
// but never stored in the FST.
type Special int

const (
	SpecialHeader Special = iota
	SpecialApploader
	SpecialBoot
)

// SystemDataDir is the host directory holding the special files.
const SystemDataDir = "&&systemdata"

var specialNames = [...]string{
	SpecialHeader:    "ISO.hdr",
	SpecialApploader: "AppLoader.ldr",
	SpecialBoot:      "Start.dol",
}

// Specials lists the special regions in disc order.
var Specials = []Special{SpecialHeader, SpecialApploader, SpecialBoot}

func (s Special) String() string { return specialNames[s] }

// Region returns the region name used in errors.
func (s Special) Region() string {
	switch s {
	case SpecialHeader:
		return gcm.RegionHeader
	case SpecialApploader:
		return gcm.RegionApploader
	}
	return gcm.RegionDOL
}

// SpecialPath returns where the special file lives in an extracted tree.
func (s Special) SpecialPath() string { return SystemDataDir + "/" + s.String() }

// specialFor reports whether path names a special file, either at the tree
// root or inside SystemDataDir.
func specialFor(path string) (Special, bool) {
	parts := fst.SplitPath(path)
	switch {
	case len(parts) == 1:
	case len(parts) == 2 && parts[0] == SystemDataDir:
		parts = parts[1:]
	default:
		return 0, false
	}
	for s, name := range specialNames {
		if parts[0] == name {
			return Special(s), true
		}
	}
	return 0, false
}

// Tree is the mutable pivot between an image and a host directory.
type Tree struct {
	Root *Node

	Header    Source
	Apploader Source
	Boot      Source

	// Skipped lists host paths left out because they are not regular
	// files or directories.
	Skipped []string
}

// NewTree returns an empty tree with no special regions.
func NewTree() *Tree {
	return &Tree{Root: &Node{Kind: DirNode}}
}

// Special returns the source of a special region.
func (t *Tree) Special(s Special) Source {
	switch s {
	case SpecialHeader:
		return t.Header
	case SpecialApploader:
		return t.Apploader
	}
	return t.Boot
}

// SetSpecial replaces the source of a special region.
func (t *Tree) SetSpecial(s Special, src Source) {
	switch s {
	case SpecialHeader:
		t.Header = src
	case SpecialApploader:
		t.Apploader = src
	default:
		t.Boot = src
	}
}

// Lookup finds the node at path. "" is the root.
func (t *Tree) Lookup(path string) (*Node, error) {
	n := t.Root
	for _, part := range fst.SplitPath(path) {
		if !n.IsDir() {
			return nil, &gcm.PathError{Op: "lookup", Path: path, Err: gcm.ErrNotDirectory}
		}
		if n = n.Child(part); n == nil {
			return nil, &gcm.PathError{Op: "lookup", Path: path, Err: gcm.ErrNotFound}
		}
	}
	return n, nil
}

// Insert adds a file at path, creating missing parent directories. A path
// naming a special file replaces that region's source instead.
func (t *Tree) Insert(path string, src Source) error {
	if s, ok := specialFor(path); ok {
		t.SetSpecial(s, src)
		return nil
	}
	parts := fst.SplitPath(path)
	if len(parts) == 0 {
		return &gcm.PathError{Op: "insert", Path: path, Err: gcm.ErrInvalidName}
	}
	if parts[0] == SystemDataDir {
		return &gcm.PathError{Op: "insert", Path: path, Err: fmt.Errorf("%w: %s is reserved", gcm.ErrInvalidName, SystemDataDir)}
	}
	for _, part := range parts {
		if err := fst.ValidateName(part); err != nil {
			return &gcm.PathError{Op: "insert", Path: path, Err: err}
		}
	}

	// Find the deepest existing directory before changing anything so a
	// failed insert leaves the tree as it was.
	dir := t.Root
	i := 0
	for ; i < len(parts); i++ {
		c := dir.Child(parts[i])
		if c == nil {
			break
		}
		if !c.IsDir() {
			if i == len(parts)-1 {
				return &gcm.PathError{Op: "insert", Path: path, Err: gcm.ErrAlreadyExists}
			}
			return &gcm.PathError{Op: "insert", Path: path, Err: gcm.ErrNotDirectory}
		}
		dir = c
	}
	if i == len(parts) {
		return &gcm.PathError{Op: "insert", Path: path, Err: gcm.ErrAlreadyExists}
	}

	for ; i < len(parts)-1; i++ {
		d := &Node{Kind: DirNode, Name: parts[i]}
		dir.add(d)
		dir = d
	}
	dir.add(&Node{Kind: FileNode, Name: parts[i], Source: src})
	return nil
}

// Delete removes a file or a whole directory subtree.
func (t *Tree) Delete(path string) error {
	if len(fst.SplitPath(path)) == 0 {
		return &gcm.PathError{Op: "delete", Path: path, Err: gcm.ErrDeleteRoot}
	}
	n, err := t.Lookup(path)
	if err != nil {
		var pe *gcm.PathError
		if errors.As(err, &pe) {
			pe.Op = "delete"
		}
		return err
	}
	n.parent.remove(n)
	return nil
}

// Clone returns a deep copy of the tree structure. Sources are shared.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		Header:    t.Header,
		Apploader: t.Apploader,
		Boot:      t.Boot,
		Skipped:   append([]string(nil), t.Skipped...),
	}
	c.Root = cloneNode(t.Root)
	return c
}

func cloneNode(n *Node) *Node {
	c := &Node{Kind: n.Kind, Name: n.Name, Source: n.Source}
	for _, child := range n.Children {
		c.add(cloneNode(child))
	}
	return c
}

// Walk visits every node below the root in pre-order.
func (t *Tree) Walk(fn func(path string, n *Node) error) error {
	return walk(t.Root, "", fn)
}

// Walk visits every node below n in pre-order with its full tree path.
func (n *Node) Walk(fn func(path string, n *Node) error) error {
	return walk(n, n.Path(), fn)
}

func walk(dir *Node, prefix string, fn func(string, *Node) error) error {
	for _, c := range dir.Children {
		p := c.Name
		if prefix != "" {
			p = prefix + "/" + c.Name
		}
		if err := fn(p, c); err != nil {
			return err
		}
		if c.IsDir() {
			if err := walk(c, p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Counts returns the number of files and directories below the root.
func (t *Tree) Counts() (files, dirs int) {
	_ = t.Walk(func(_ string, n *Node) error {
		if n.IsDir() {
			dirs++
		} else {
			files++
		}
		return nil
	})
	return files, dirs
}

// Disc is a decoded image: its region headers, its FST and its length.
type Disc struct {
	Header    *gcm.Header
	Apploader *gcm.Apploader
	DOL       *gcm.DOL
	Table     *fst.Table
	Size      int64
}

// HeaderRegion returns the header's byte range.
func (d *Disc) HeaderRegion() Region { return Region{Offset: 0, Size: gcm.HeaderSize} }

// ApploaderRegion returns the apploader's byte range.
func (d *Disc) ApploaderRegion() Region {
	return Region{Offset: gcm.ApploaderOffset, Size: int64(d.Apploader.TotalSize())}
}

// BootRegion returns the DOL's byte range.
func (d *Disc) BootRegion() Region {
	return Region{Offset: int64(d.Header.DOLOffset), Size: int64(d.DOL.TotalSize())}
}

// FSTRegion returns the FST's byte range.
func (d *Disc) FSTRegion() Region {
	return Region{Offset: int64(d.Header.FSTOffset), Size: int64(d.Header.FSTSize)}
}

// SpecialRegion returns the byte range of a special region.
func (d *Disc) SpecialRegion(s Special) Region {
	switch s {
	case SpecialHeader:
		return d.HeaderRegion()
	case SpecialApploader:
		return d.ApploaderRegion()
	}
	return d.BootRegion()
}

// DataStart returns the lowest offset of a non-empty file. An image without
// file data starts its data region after the larger of the FST size and max
// FST size.
func (d *Disc) DataStart() int64 {
	start := int64(-1)
	for _, i := range d.Table.Files() {
		e := d.Table.Entries[i]
		if e.Size == 0 {
			continue
		}
		if start < 0 || int64(e.Offset) < start {
			start = int64(e.Offset)
		}
	}
	if start >= 0 {
		return start
	}
	fstLen := max(d.Header.FSTSize, d.Header.MaxFSTSize)
	return common.Align64(int64(d.Header.FSTOffset)+int64(fstLen), gcm.RegionAlignment)
}

// DataEnd returns the end of the last byte used by any region or file.
func (d *Disc) DataEnd() int64 {
	end := d.FSTRegion().End()
	for _, r := range []Region{d.HeaderRegion(), d.ApploaderRegion(), d.BootRegion()} {
		end = max(end, r.End())
	}
	for _, i := range d.Table.Files() {
		if e := d.Table.Entries[i]; e.Size > 0 {
			end = max(end, int64(e.Offset)+int64(e.Size))
		}
	}
	return end
}

// Open decodes the header, apploader, DOL and FST of an image of the given
// length and checks that every file lies inside it.
func Open(r io.ReaderAt, size int64) (*Disc, error) {
	h, err := gcm.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	app, err := gcm.ReadApploader(r, gcm.ApploaderOffset)
	if err != nil {
		return nil, err
	}
	dol, err := gcm.ReadDOL(r, int64(h.DOLOffset))
	if err != nil {
		return nil, err
	}
	table, err := fst.Read(r, h)
	if err != nil {
		return nil, err
	}
	for _, i := range table.Files() {
		e := table.Entries[i]
		if int64(e.Offset)+int64(e.Size) > size {
			return nil, &gcm.FormatError{
				Region: gcm.RegionFST,
				Offset: int64(h.FSTOffset) + int64(i*fst.EntrySize),
				Err:    fmt.Errorf("%w: %s at 0x%X+0x%X lies past the image end 0x%X", gcm.ErrTruncatedFST, table.FullPath(i), e.Offset, e.Size, size),
			}
		}
	}
	return &Disc{Header: h, Apploader: app, DOL: dol, Table: table, Size: size}, nil
}

// Tree builds the mutable tree of the image. Every file and special region
// points back into the image.
func (d *Disc) Tree() *Tree {
	t := NewTree()
	t.Header = InImage{Offset: 0, Size: gcm.HeaderSize}
	r := d.ApploaderRegion()
	t.Apploader = InImage{Offset: r.Offset, Size: r.Size}
	r = d.BootRegion()
	t.Boot = InImage{Offset: r.Offset, Size: r.Size}
	d.addChildren(t.Root, 0)
	return t
}

func (d *Disc) addChildren(dir *Node, index int) {
	for _, c := range d.Table.Children(index) {
		e := d.Table.Entries[c]
		if e.IsDir() {
			n := &Node{Kind: DirNode, Name: e.Name}
			dir.add(n)
			d.addChildren(n, c)
			continue
		}
		dir.add(&Node{Kind: FileNode, Name: e.Name, Source: InImage{Offset: int64(e.Offset), Size: int64(e.Size)}})
	}
}

// FromImage decodes an image and returns its tree.
func FromImage(r io.ReaderAt, size int64) (*Tree, *Disc, error) {
	d, err := Open(r, size)
	if err != nil {
		return nil, nil, err
	}
	return d.Tree(), d, nil
}

// HostOptions controls how a host directory becomes a tree.
type HostOptions struct {
	// Strict fails on the first entry that is not a regular file or a
	// directory instead of skipping it.
	Strict bool
}

// FromHost builds a tree from the provider's root. Siblings are ordered
// case-insensitively. Special files come from SystemDataDir or the root.
func FromHost(p HostProvider, opts HostOptions) (*Tree, error) {
	t := NewTree()
	if err := t.addHostDir(p, t.Root, "", opts); err != nil {
		return nil, err
	}
	if len(t.Skipped) > 0 {
		common.LogInfo(common.InfoSkippedHostEntry, len(t.Skipped))
	}
	return t, nil
}

func (t *Tree) addHostDir(p HostProvider, dir *Node, prefix string, opts HostOptions) error {
	entries, err := p.ListDir(prefix)
	if err != nil {
		return &gcm.PathError{Op: "list", Path: prefix, Err: err}
	}
	sortHostEntries(entries)

	for _, e := range entries {
		hostPath := e.Name
		if prefix != "" {
			hostPath = prefix + "/" + e.Name
		}
		if e.Kind == HostOther {
			if opts.Strict {
				return &gcm.PathError{Op: "read", Path: hostPath, Err: gcm.ErrUnsupportedFileType}
			}
			common.LogWarn(common.WarnUnsupportedHostEntry, hostPath)
			t.Skipped = append(t.Skipped, hostPath)
			continue
		}
		if prefix == "" && e.Name == SystemDataDir && e.Kind == HostDirectory {
			if err := t.addSystemData(p, opts); err != nil {
				return err
			}
			continue
		}
		if s, ok := specialFor(hostPath); ok && e.Kind == HostRegular {
			t.SetSpecial(s, External{Provider: p, Path: hostPath, Size: e.Size})
			continue
		}
		if err := fst.ValidateName(e.Name); err != nil {
			return &gcm.PathError{Op: "read", Path: hostPath, Err: err}
		}
		if e.Kind == HostDirectory {
			n := &Node{Kind: DirNode, Name: e.Name}
			dir.add(n)
			if err := t.addHostDir(p, n, hostPath, opts); err != nil {
				return err
			}
			continue
		}
		dir.add(&Node{Kind: FileNode, Name: e.Name, Source: External{Provider: p, Path: hostPath, Size: e.Size}})
	}
	return nil
}

func (t *Tree) addSystemData(p HostProvider, opts HostOptions) error {
	entries, err := p.ListDir(SystemDataDir)
	if err != nil {
		return &gcm.PathError{Op: "list", Path: SystemDataDir, Err: err}
	}
	for _, e := range entries {
		hostPath := SystemDataDir + "/" + e.Name
		s, ok := specialFor(hostPath)
		switch {
		case ok && e.Kind == HostRegular:
			t.SetSpecial(s, External{Provider: p, Path: hostPath, Size: e.Size})
		case e.Kind == HostOther && opts.Strict:
			return &gcm.PathError{Op: "read", Path: hostPath, Err: gcm.ErrUnsupportedFileType}
		default:
			common.LogWarn(common.WarnUnsupportedHostEntry, hostPath)
			t.Skipped = append(t.Skipped, hostPath)
		}
	}
	return nil
}

func sortHostEntries(entries []HostEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if a != b {
			return a < b
		}
		return entries[i].Name < entries[j].Name
	})
}
