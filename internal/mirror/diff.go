package mirror

import (
	"sort"
	"strings"
)

// DiffOptions controls optional diff behavior.
type DiffOptions struct {
	// Prune emits removals for manifest paths no longer present remotely.
	Prune bool
}

// Diff compares the remote snapshot against the manifest and returns the
// ordered action list. Deterministic given its inputs; pure, so tests need
// no I/O.
//
// Emission order:
//  1. prunes forced by a kind change, deepest-first, so the old shape is
//     gone before the new one is created
//  2. MkDir for missing/incomplete remote directories, parents before
//     children (ascending depth, then lexical)
//  3. Fetch/Skip for remote files in lexical path order
//  4. prunes for vanished paths (when enabled), deepest-first
func Diff(remote *Tree, manifest *Manifest, opts DiffOptions) []*Action {
	var kindPrunes, mkdirs, files, prunes []*Action

	remotePaths := remote.Paths()

	// kind changes: a recorded entry whose remote counterpart switched
	// between file and directory is pruned explicitly, never silently
	// overwritten. A dir-to-file switch prunes the whole recorded subtree.
	kindChanged := make(map[string]bool)
	for _, p := range remotePaths {
		re, _ := remote.Get(p)
		me, ok := manifest.Get(p)
		if !ok || me.Kind == re.Kind {
			continue
		}
		if me.Kind == KindDir {
			for _, sub := range manifestSubtree(manifest, p) {
				kindChanged[sub] = true
			}
		}
		kindChanged[p] = true
	}
	for p := range kindChanged {
		me, _ := manifest.Get(p)
		kindPrunes = append(kindPrunes, &Action{Op: OpPrune, Path: p, Entry: &me.Entry})
	}
	sortDeepestFirst(kindPrunes)

	for _, p := range remotePaths {
		re, _ := remote.Get(p)
		me, recorded := manifest.Get(p)
		if recorded && kindChanged[p] {
			// treat as absent: the old kind is being pruned above
			recorded = false
			me = nil
		}

		switch re.Kind {
		case KindDir:
			if !recorded || me.Status != StatusComplete {
				mkdirs = append(mkdirs, &Action{Op: OpMkDir, Path: p, Entry: re})
			}
		case KindFile:
			switch {
			case !recorded:
				files = append(files, &Action{Op: OpFetch, Path: p, Entry: re})
			case me.Status == StatusPending:
				// an interrupted download; partial content cannot be
				// trusted, redo it
				files = append(files, &Action{Op: OpFetch, Path: p, Entry: re})
			case !Equal(re, &me.Entry):
				files = append(files, &Action{Op: OpFetch, Path: p, Entry: re})
			default:
				files = append(files, &Action{Op: OpSkip, Path: p, Entry: re})
			}
		}
	}
	sort.Slice(mkdirs, func(i, j int) bool {
		di, dj := PathDepth(mkdirs[i].Path), PathDepth(mkdirs[j].Path)
		if di != dj {
			return di < dj
		}
		return mkdirs[i].Path < mkdirs[j].Path
	})

	if opts.Prune {
		for _, p := range manifest.Paths() {
			if kindChanged[p] {
				continue
			}
			if _, ok := remote.Get(p); ok {
				continue
			}
			me, _ := manifest.Get(p)
			prunes = append(prunes, &Action{Op: OpPrune, Path: p, Entry: &me.Entry})
		}
		sortDeepestFirst(prunes)
	}

	actions := make([]*Action, 0, len(kindPrunes)+len(mkdirs)+len(files)+len(prunes))
	actions = append(actions, kindPrunes...)
	actions = append(actions, mkdirs...)
	actions = append(actions, files...)
	actions = append(actions, prunes...)
	return actions
}

// manifestSubtree returns the recorded paths at or below root.
func manifestSubtree(m *Manifest, root string) []string {
	var paths []string
	prefix := root + "/"
	for p := range m.Entries() {
		if p == root || strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	return paths
}

// sortDeepestFirst orders prunes so children go before their parents.
func sortDeepestFirst(actions []*Action) {
	sort.Slice(actions, func(i, j int) bool {
		di, dj := PathDepth(actions[i].Path), PathDepth(actions[j].Path)
		if di != dj {
			return di > dj
		}
		return actions[i].Path < actions[j].Path
	})
}
