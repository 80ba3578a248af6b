package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	defaultListParallel = 4

	// maxWalkDepth bounds traversal depth. Path-keyed listings turn a
	// remote cycle into ever-growing paths, so a depth cap is the
	// cycle detector of last resort.
	maxWalkDepth = 512
)

// Walker builds a normalized in-memory tree from a Lister. Traversal uses
// an explicit breadth-first frontier instead of recursion so that remote
// depth never maps onto stack depth, and a visited set rejects revisits.
type Walker struct {
	lister   Lister
	parallel int
}

// WalkResult carries the tree plus any subtrees that were dropped because
// the listing contradicted itself.
type WalkResult struct {
	Tree         *Tree
	Inconsistent []*ActionError
}

func NewWalker(lister Lister, parallel int) *Walker {
	if parallel <= 0 {
		parallel = defaultListParallel
	}
	return &Walker{lister: lister, parallel: parallel}
}

// Build walks the remote store exhaustively and returns the snapshot.
// ErrRemoteAuth and ErrRemoteUnavailable abort the walk; inconsistent
// subtrees are dropped, recorded and the walk continues.
func (w *Walker) Build(ctx context.Context) (*WalkResult, error) {
	res := &WalkResult{Tree: NewTree()}
	visited := map[string]bool{"": true}

	// frontier of directory paths still to list, one wave per depth level
	frontier := []string{""}
	depth := 0

	for len(frontier) > 0 {
		if depth > maxWalkDepth {
			return nil, fmt.Errorf("%w: depth limit %d exceeded, listing likely cyclic", ErrRemoteInconsistent, maxWalkDepth)
		}

		type listing struct {
			entries []*ListEntry
			err     error
		}
		results := make([]listing, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.parallel)
		for i, dir := range frontier {
			i, dir := i, dir
			g.Go(func() error {
				entries, err := w.lister.List(gctx, dir)
				if err != nil && (errors.Is(err, ErrRemoteAuth) || errors.Is(err, ErrRemoteUnavailable)) {
					return fmt.Errorf("list %q: %w", dir, err)
				}
				results[i] = listing{entries: entries, err: err}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for i, dir := range frontier {
			if err := results[i].err; err != nil {
				w.dropSubtree(res, dir, err)
				continue
			}
			for _, le := range results[i].entries {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				entry, err := w.toEntry(dir, le)
				if err != nil {
					slog.Warn("walk skip entry", "dir", dir, "name", le.Name, "error", err)
					continue
				}
				if visited[entry.Path] {
					w.dropSubtree(res, entry.Path, fmt.Errorf("%w: %q listed twice", ErrRemoteInconsistent, entry.Path))
					continue
				}
				if prev, ok := res.Tree.Get(entry.Path); ok {
					w.dropSubtree(res, entry.Path, fmt.Errorf("%w: %q is both %s and %s", ErrRemoteInconsistent, entry.Path, prev.Kind, entry.Kind))
					continue
				}
				if err := res.Tree.Add(entry); err != nil {
					w.dropSubtree(res, entry.Path, err)
					continue
				}
				if entry.IsDir() {
					visited[entry.Path] = true
					next = append(next, entry.Path)
				}
			}
		}
		sort.Strings(next)
		frontier = next
		depth++
	}

	if err := res.Tree.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func (w *Walker) toEntry(dir string, le *ListEntry) (*Entry, error) {
	if le.Name == "" || le.Name == "." || le.Name == ".." {
		return nil, fmt.Errorf("invalid name %q", le.Name)
	}
	p := NormPath(le.Name)
	if p == "" {
		return nil, fmt.Errorf("invalid name %q", le.Name)
	}
	if dir != "" {
		p = dir + "/" + p
	}
	if le.Kind != KindFile && le.Kind != KindDir {
		return nil, fmt.Errorf("unsupported kind %q", le.Kind)
	}
	return &Entry{
		Path: p,
		Kind: le.Kind,
		Fingerprint: Fingerprint{
			Size:    le.Size,
			Hash:    le.Hash,
			ModTime: le.ModTime,
		},
		Ref: le.Ref,
	}, nil
}

func (w *Walker) dropSubtree(res *WalkResult, path string, err error) {
	slog.Warn("walk drop subtree", "path", path, "error", err)
	res.Tree.RemoveSubtree(path)
	res.Inconsistent = append(res.Inconsistent, &ActionError{
		Path: path,
		Op:   OpSkip,
		Err:  err,
	})
}
