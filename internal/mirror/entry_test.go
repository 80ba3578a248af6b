package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/b", "a/b"},
		{"/a/b/", "a/b"},
		{"a//b", "a/b"},
		{"a/./b", "a/b"},
		{"a/../b", "b"},
		{`a\b`, "a/b"},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormPath(tt.in), "NormPath(%q)", tt.in)
	}
}

func TestPathDepth(t *testing.T) {
	assert.Equal(t, -1, PathDepth(""))
	assert.Equal(t, 0, PathDepth("a"))
	assert.Equal(t, 1, PathDepth("a/b"))
	assert.Equal(t, 2, PathDepth("a/b/c"))
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "", ParentPath("a"))
	assert.Equal(t, "a", ParentPath("a/b"))
	assert.Equal(t, "a/b", ParentPath("a/b/c"))
}

func TestTreeAdd(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Add(&Entry{Path: "a", Kind: KindDir}))
	require.NoError(t, tree.Add(&Entry{Path: "a/x.bin", Kind: KindFile}))

	err := tree.Add(&Entry{Path: "a/x.bin", Kind: KindDir})
	require.ErrorIs(t, err, ErrRemoteInconsistent)

	err = tree.Add(&Entry{Path: "", Kind: KindFile})
	require.ErrorIs(t, err, ErrRemoteInconsistent)

	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, []string{"a", "a/x.bin"}, tree.Paths())
}

func TestTreeValidate(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Add(&Entry{Path: "a", Kind: KindDir}))
	require.NoError(t, tree.Add(&Entry{Path: "a/b", Kind: KindDir}))
	require.NoError(t, tree.Add(&Entry{Path: "a/b/c.bin", Kind: KindFile}))
	require.NoError(t, tree.Validate())

	orphaned := NewTree()
	require.NoError(t, orphaned.Add(&Entry{Path: "a/b/c.bin", Kind: KindFile}))
	require.ErrorIs(t, orphaned.Validate(), ErrRemoteInconsistent)

	fileParent := NewTree()
	require.NoError(t, fileParent.Add(&Entry{Path: "a", Kind: KindFile}))
	require.NoError(t, fileParent.Add(&Entry{Path: "a/b", Kind: KindFile}))
	require.ErrorIs(t, fileParent.Validate(), ErrRemoteInconsistent)
}

func TestTreeRemoveSubtree(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Add(&Entry{Path: "a", Kind: KindDir}))
	require.NoError(t, tree.Add(&Entry{Path: "a/b", Kind: KindDir}))
	require.NoError(t, tree.Add(&Entry{Path: "a/b/c.bin", Kind: KindFile}))
	require.NoError(t, tree.Add(&Entry{Path: "ab", Kind: KindFile}))

	tree.RemoveSubtree("a")

	// prefix match must not swallow the sibling "ab"
	assert.Equal(t, []string{"ab"}, tree.Paths())
}
