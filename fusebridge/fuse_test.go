package fusebridge

import (
	"context"
	"testing"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/config"
	"github.com/cloudkit/cloudkit/vfs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

func newTestFuse(t *testing.T) (*FuseRaw, *vfs.Tree, *fakeProvider) {
	t.Helper()
	p := newFakeProvider()
	cfg := config.NewConfig(&config.ConfigOverride{TemporaryDir: strPtr(t.TempDir())})
	tree := vfs.NewTree(cfg, p)
	require.NoError(t, tree.EnsureRoot(context.Background()))
	r := NewFuseRaw(context.Background(), tree)
	return r, tree, p
}

func strPtr(s string) *string { return &s }

func noCancel() <-chan struct{} { return make(chan struct{}) }

func TestFuseRaw_MkdirThenLookup(t *testing.T) {
	t.Parallel()
	r, tree, _ := newTestFuse(t)

	var entryOut fuse.EntryOut
	status := r.Mkdir(noCancel(), &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, "photos", &entryOut)
	require.Equal(t, fuse.OK, status)
	assert.NotZero(t, entryOut.NodeId)

	var lookupOut fuse.EntryOut
	status = r.Lookup(noCancel(), &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "photos", &lookupOut)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, entryOut.NodeId, lookupOut.NodeId)
	assert.True(t, lookupOut.Attr.Mode&fuse.S_IFDIR != 0)

	_ = tree
}

func TestFuseRaw_Lookup_MissingReturnsENOENT(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestFuse(t)

	var out fuse.EntryOut
	status := r.Lookup(noCancel(), &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "nope", &out)
	assert.Equal(t, fuse.ENOENT, status)
}

func TestFuseRaw_CreateWriteReleaseUploads(t *testing.T) {
	t.Parallel()
	r, tree, p := newTestFuse(t)

	var createOut fuse.CreateOut
	status := r.Create(noCancel(), &fuse.CreateIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}}, "note.txt", &createOut)
	require.Equal(t, fuse.OK, status)
	nodeID := createOut.EntryOut.NodeId
	require.NotZero(t, nodeID)

	payload := []byte("hello from a staged write")
	n, status := r.Write(noCancel(), &fuse.WriteIn{InHeader: fuse.InHeader{NodeId: nodeID}, Offset: 0}, payload)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, uint32(len(payload)), n)

	r.Release(noCancel(), &fuse.ReleaseIn{InHeader: fuse.InHeader{NodeId: nodeID}})

	require.Eventually(t, func() bool {
		_, staged := tree.LookupStagedCreate(nodeID)
		return !staged
	}, testWait, testTick)

	p.mu.Lock()
	item, ok := p.children["note.txt"]
	p.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, payload, p.files[item.ID])
}

func TestFuseRaw_ReadDownloadsClampedRange(t *testing.T) {
	t.Parallel()
	r, tree, p := newTestFuse(t)

	size := uint64(5)
	item := cloudkit.Item{ID: "item-x", Filename: "x.bin", Size: &size}
	p.mu.Lock()
	p.children["x.bin"] = item
	p.files["item-x"] = []byte("hello")
	p.mu.Unlock()

	nctx, err := tree.ResolveChild(context.Background(), fuse.FUSE_ROOT_ID, "x.bin")
	require.NoError(t, err)
	require.NotNil(t, nctx)
	nodeID := nctx.NodeID()
	nctx.Close()

	buf := make([]byte, 100)
	res, status := r.Read(noCancel(), &fuse.ReadIn{InHeader: fuse.InHeader{NodeId: nodeID}, Offset: 0, Size: 100}, buf)
	require.Equal(t, fuse.OK, status)
	data, status := res.Bytes(buf)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, "hello", string(data))
}

func TestFuseRaw_UnlinkRemovesItem(t *testing.T) {
	t.Parallel()
	r, tree, p := newTestFuse(t)

	p.mu.Lock()
	p.children["gone.txt"] = cloudkit.Item{ID: "item-gone", Filename: "gone.txt"}
	p.mu.Unlock()

	_, err := tree.ResolveChild(context.Background(), fuse.FUSE_ROOT_ID, "gone.txt")
	require.NoError(t, err)

	status := r.Unlink(noCancel(), &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "gone.txt")
	require.Equal(t, fuse.OK, status)

	p.mu.Lock()
	_, stillThere := p.children["gone.txt"]
	p.mu.Unlock()
	assert.False(t, stillThere)
}

func TestFuseRaw_RenameSameParent(t *testing.T) {
	t.Parallel()
	r, tree, p := newTestFuse(t)

	p.mu.Lock()
	p.children["old.txt"] = cloudkit.Item{ID: "item-r", Filename: "old.txt"}
	p.mu.Unlock()
	_, err := tree.ResolveChild(context.Background(), fuse.FUSE_ROOT_ID, "old.txt")
	require.NoError(t, err)

	status := r.Rename(noCancel(), &fuse.RenameIn{InHeader: fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, Newdir: fuse.FUSE_ROOT_ID}, "old.txt", "new.txt")
	require.Equal(t, fuse.OK, status)

	var out fuse.EntryOut
	status = r.Lookup(noCancel(), &fuse.InHeader{NodeId: fuse.FUSE_ROOT_ID}, "new.txt", &out)
	assert.Equal(t, fuse.OK, status)
}
