package vfs

import (
	"testing"

	"github.com/cloudkit/cloudkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func size(n uint64) *uint64 { return &n }

func TestNewTree_RootIsDirectory(t *testing.T) {
	t.Parallel()

	tr := NewTree(nil, nil)
	ctx := tr.RootCtx()
	defer ctx.Close()

	assert.True(t, ctx.Attr().Mode&0o40000 != 0, "root should be a directory")
}

func TestUpsertChild_ReusesInodeAcrossRelistings(t *testing.T) {
	t.Parallel()

	tr := NewTree(nil, nil)
	root := tr.root

	item := cloudkit.Item{ID: "abc123", Filename: "notes.txt", Size: size(10)}
	first := tr.UpsertChild(root, item)

	item.Size = size(20)
	second := tr.UpsertChild(root, item)

	require.Same(t, first, second, "same name under same parent must return the existing node")
	assert.Equal(t, uint64(20), second.CopyAttr().Size, "relisting must refresh cached attributes")
}

func TestUpsertChild_SanitizesName(t *testing.T) {
	t.Parallel()

	tr := NewTree(nil, nil)
	root := tr.root

	item := cloudkit.Item{ID: "x", Filename: "weird/na\x00me"}
	node := tr.UpsertChild(root, item)

	assert.NotContains(t, node.Name(), "/")
	assert.NotContains(t, node.Name(), "\x00")
}

func TestEnsureNodeID_AllocatesOnce(t *testing.T) {
	t.Parallel()

	tr := NewTree(nil, nil)
	node := tr.MakeDirNode(tr.root, "dir")

	id1 := tr.EnsureNodeID(node)
	id2 := tr.EnsureNodeID(node)

	assert.Equal(t, id1, id2)
	assert.NotZero(t, id1)
}

func TestGetChildCtx_UnknownParentReturnsNil(t *testing.T) {
	t.Parallel()

	tr := NewTree(nil, nil)
	assert.Nil(t, tr.GetChildCtx(999, "missing"))
}

func TestForgetNodeID_DropsStagedCreate(t *testing.T) {
	t.Parallel()

	tr := NewTree(nil, nil)
	node := tr.MakeDirNode(tr.root, "d")
	id := tr.EnsureNodeID(node)

	tr.StageCreate(id, &CreatedNode{ParentNodeID: fuseRootID, Filename: "f"})
	_, ok := tr.LookupStagedCreate(id)
	require.True(t, ok)

	tr.ForgetNodeID(id)
	_, ok = tr.LookupStagedCreate(id)
	assert.False(t, ok)
}

const fuseRootID = 1
