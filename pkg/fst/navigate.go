package fst

import (
	"strings"
)

// Children returns the indices of the direct children of directory dir,
// skipping over the ranges of nested subdirectories.
func (t *Table) Children(dir int) []int {
	if dir < 0 || dir >= len(t.Entries) || !t.Entries[dir].IsDir() {
		return nil
	}
	var children []int
	for i := dir + 1; i < t.Entries[dir].Next; {
		children = append(children, i)
		if t.Entries[i].IsDir() {
			i = t.Entries[i].Next
		} else {
			i++
		}
	}
	return children
}

// FullPath returns the slash-separated path of entry i. The root is "".
func (t *Table) FullPath(i int) string {
	var parts []string
	for i > 0 && i < len(t.Entries) {
		parts = append(parts, t.Entries[i].Name)
		i = t.Entries[i].Parent
	}
	for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
		parts[l], parts[r] = parts[r], parts[l]
	}
	return strings.Join(parts, "/")
}

// Lookup finds the entry at a slash-separated path. Leading and trailing
// slashes are ignored; "" and "/" name the root.
func (t *Table) Lookup(path string) (int, bool) {
	cur := 0
	for _, part := range SplitPath(path) {
		found := -1
		for _, c := range t.Children(cur) {
			if t.Entries[c].Name == part {
				found = c
				break
			}
		}
		if found < 0 {
			return 0, false
		}
		cur = found
	}
	return cur, true
}

// Files returns the indices of every file entry in index order.
func (t *Table) Files() []int {
	var files []int
	for i := range t.Entries {
		if !t.Entries[i].IsDir() {
			files = append(files, i)
		}
	}
	return files
}

// Walk visits every entry after the root in index order, which is a
// pre-order traversal of the tree.
func (t *Table) Walk(fn func(i int, path string, e *Entry) error) error {
	for i := 1; i < len(t.Entries); i++ {
		if err := fn(i, t.FullPath(i), &t.Entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// SplitPath splits a slash-separated disc path into its non-empty elements.
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
