package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var diffMod = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func remoteDir(t *testing.T, tree *Tree, path string) {
	t.Helper()
	require.NoError(t, tree.Add(&Entry{Path: path, Kind: KindDir}))
}

func remoteFile(t *testing.T, tree *Tree, path string, size int64, hash string) {
	t.Helper()
	require.NoError(t, tree.Add(&Entry{
		Path:        path,
		Kind:        KindFile,
		Fingerprint: Fingerprint{Size: size, Hash: hash, ModTime: diffMod},
		Ref:         "/" + path,
	}))
}

func recordedDir(m *Manifest, path string) {
	m.Set(&Entry{Path: path, Kind: KindDir}, StatusComplete)
}

func recordedFile(m *Manifest, path string, size int64, hash string, status EntryStatus) {
	m.Set(&Entry{
		Path:        path,
		Kind:        KindFile,
		Fingerprint: Fingerprint{Size: size, Hash: hash, ModTime: diffMod},
	}, status)
}

func ops(actions []*Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.String()
	}
	return out
}

func TestDiffEmptyManifest(t *testing.T) {
	tree := NewTree()
	remoteDir(t, tree, "a")
	remoteFile(t, tree, "a/x.bin", 10, "")
	remoteFile(t, tree, "b.bin", 5, "")

	actions := Diff(tree, NewManifest(0), DiffOptions{})
	require.Equal(t, []string{
		"mkdir(a)",
		"fetch(a/x.bin)",
		"fetch(b.bin)",
	}, ops(actions))
}

func TestDiffUnchangedSkips(t *testing.T) {
	tree := NewTree()
	remoteFile(t, tree, "a.bin", 10, "h1")
	remoteFile(t, tree, "b.bin", 5, "h2")

	m := NewManifest(3)
	recordedFile(m, "a.bin", 10, "h1", StatusComplete)
	recordedFile(m, "b.bin", 5, "h2", StatusComplete)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{"skip(a.bin)", "skip(b.bin)"}, ops(actions))
}

func TestDiffHashChangeRefetches(t *testing.T) {
	tree := NewTree()
	remoteFile(t, tree, "a.bin", 10, "h1")
	remoteFile(t, tree, "b.bin", 5, "new")

	m := NewManifest(3)
	recordedFile(m, "a.bin", 10, "h1", StatusComplete)
	recordedFile(m, "b.bin", 5, "old", StatusComplete)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{"skip(a.bin)", "fetch(b.bin)"}, ops(actions))
}

func TestDiffPendingRefetches(t *testing.T) {
	tree := NewTree()
	remoteFile(t, tree, "a.bin", 10, "h1")

	m := NewManifest(1)
	recordedFile(m, "a.bin", 10, "h1", StatusPending)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{"fetch(a.bin)"}, ops(actions))
}

func TestDiffPruneDisabledByDefault(t *testing.T) {
	tree := NewTree()
	remoteFile(t, tree, "keep.bin", 1, "")

	m := NewManifest(2)
	recordedFile(m, "keep.bin", 1, "", StatusComplete)
	recordedFile(m, "gone.bin", 1, "", StatusComplete)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{"skip(keep.bin)"}, ops(actions))
}

func TestDiffPruneDeepestFirst(t *testing.T) {
	tree := NewTree()
	remoteFile(t, tree, "keep.bin", 1, "")

	m := NewManifest(2)
	recordedFile(m, "keep.bin", 1, "", StatusComplete)
	recordedDir(m, "old")
	recordedDir(m, "old/sub")
	recordedFile(m, "old/sub/f.bin", 1, "", StatusComplete)
	recordedFile(m, "old/g.bin", 1, "", StatusComplete)

	actions := Diff(tree, m, DiffOptions{Prune: true})
	require.Equal(t, []string{
		"skip(keep.bin)",
		"prune(old/sub/f.bin)",
		"prune(old/g.bin)",
		"prune(old/sub)",
		"prune(old)",
	}, ops(actions))
}

func TestDiffKindChangeFileToDir(t *testing.T) {
	tree := NewTree()
	remoteDir(t, tree, "p")
	remoteFile(t, tree, "p/child.bin", 3, "")

	m := NewManifest(1)
	recordedFile(m, "p", 3, "", StatusComplete)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{
		"prune(p)",
		"mkdir(p)",
		"fetch(p/child.bin)",
	}, ops(actions))
}

func TestDiffKindChangeDirToFile(t *testing.T) {
	tree := NewTree()
	remoteFile(t, tree, "p", 3, "")

	m := NewManifest(1)
	recordedDir(m, "p")
	recordedFile(m, "p/old.bin", 1, "", StatusComplete)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{
		"prune(p/old.bin)",
		"prune(p)",
		"fetch(p)",
	}, ops(actions))
}

func TestDiffMkDirOrderParentsFirst(t *testing.T) {
	tree := NewTree()
	remoteDir(t, tree, "z")
	remoteDir(t, tree, "a")
	remoteDir(t, tree, "a/deep")
	remoteDir(t, tree, "a/deep/deeper")

	actions := Diff(tree, NewManifest(0), DiffOptions{})
	require.Equal(t, []string{
		"mkdir(a)",
		"mkdir(z)",
		"mkdir(a/deep)",
		"mkdir(a/deep/deeper)",
	}, ops(actions))
}

func TestDiffIncompleteDirRecreated(t *testing.T) {
	tree := NewTree()
	remoteDir(t, tree, "d")

	m := NewManifest(1)
	m.Set(&Entry{Path: "d", Kind: KindDir}, StatusPending)

	actions := Diff(tree, m, DiffOptions{})
	require.Equal(t, []string{"mkdir(d)"}, ops(actions))
}

func TestDiffDeterministic(t *testing.T) {
	tree := NewTree()
	remoteDir(t, tree, "a")
	remoteFile(t, tree, "a/x.bin", 1, "")
	remoteFile(t, tree, "b.bin", 2, "")
	remoteFile(t, tree, "c.bin", 3, "")

	m := NewManifest(5)
	recordedFile(m, "stale1.bin", 1, "", StatusComplete)
	recordedFile(m, "stale2.bin", 1, "", StatusComplete)

	first := ops(Diff(tree, m, DiffOptions{Prune: true}))
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ops(Diff(tree, m, DiffOptions{Prune: true})))
	}
}
