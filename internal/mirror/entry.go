package mirror

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Fingerprint identifies file content without transferring it.
// Hash is optional; listings that don't expose one leave it empty and
// equality falls back to Size+ModTime (see Equal).
type Fingerprint struct {
	Size    int64
	Hash    string
	ModTime time.Time
}

// Entry is one node of a tree snapshot, remote or locally recorded.
// Path is slash-separated and relative to the sync root. Ref is the opaque
// remote handle handed to the Downloader; empty for directories.
type Entry struct {
	Path        string
	Kind        Kind
	Fingerprint Fingerprint
	Ref         string
}

func (e *Entry) IsDir() bool {
	return e.Kind == KindDir
}

// Depth is the number of path segments above the entry. Root-level
// entries have depth 0.
func (e *Entry) Depth() int {
	return PathDepth(e.Path)
}

func PathDepth(p string) int {
	if p == "" {
		return -1
	}
	return strings.Count(p, "/")
}

// ParentPath returns the directory path containing p, "" for root-level paths.
func ParentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// NormPath canonicalizes a tree path: slash-separated, cleaned, no
// leading/trailing slashes.
func NormPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Tree is one full snapshot keyed by path.
type Tree struct {
	entries map[string]*Entry
}

func NewTree() *Tree {
	return &Tree{entries: make(map[string]*Entry)}
}

func (t *Tree) Len() int {
	return len(t.entries)
}

func (t *Tree) Get(path string) (*Entry, bool) {
	e, ok := t.entries[path]
	return e, ok
}

// Add inserts an entry, rejecting duplicate paths.
func (t *Tree) Add(e *Entry) error {
	if e.Path == "" {
		return fmt.Errorf("%w: empty path", ErrRemoteInconsistent)
	}
	if _, exists := t.entries[e.Path]; exists {
		return fmt.Errorf("%w: duplicate path %q", ErrRemoteInconsistent, e.Path)
	}
	t.entries[e.Path] = e
	return nil
}

func (t *Tree) Remove(path string) {
	delete(t.entries, path)
}

// Paths returns all paths in lexical order.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (t *Tree) Entries() map[string]*Entry {
	return t.entries
}

// Validate checks the prefix-closed invariant: every entry's ancestor
// paths must be present as directories.
func (t *Tree) Validate() error {
	for p := range t.entries {
		for parent := ParentPath(p); parent != ""; parent = ParentPath(parent) {
			anc, ok := t.entries[parent]
			if !ok {
				return fmt.Errorf("%w: %q has no entry for ancestor %q", ErrRemoteInconsistent, p, parent)
			}
			if !anc.IsDir() {
				return fmt.Errorf("%w: ancestor %q of %q is not a directory", ErrRemoteInconsistent, parent, p)
			}
		}
	}
	return nil
}

// RemoveSubtree drops a path and everything nested under it.
func (t *Tree) RemoveSubtree(root string) {
	delete(t.entries, root)
	prefix := root + "/"
	for p := range t.entries {
		if strings.HasPrefix(p, prefix) {
			delete(t.entries, p)
		}
	}
}
