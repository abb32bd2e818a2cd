package fusebridge

import (
	"os"

	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/cloudkit/cloudkit/vfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mkdir creates a new directory on the provider, registers the result in
// the tree, and invalidates the parent's cached listing so the next
// readdir re-fetches it from the provider.
func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Mkdir")
	ctx, done := r.requestCtx(cancel)
	defer done()

	parent := r.tree.GetNodeCtx(input.NodeId)
	if parent == nil {
		return fuse.ENOENT
	}
	parentItem := parent.Item()
	parent.Close()

	res := r.tree.Provider().CreateDirectory(ctx, parentItem, name).Result(ctx)
	if !res.IsOk() {
		logger.Warn().Err(res.Err).Str("name", name).Msg("mkdir failed")
		return statusFromError(res.Err)
	}

	node := r.tree.UpsertChildByID(input.NodeId, res.Value)
	if node == 0 {
		return fuse.ENOENT
	}
	r.tree.InvalidateListing(input.NodeId)

	nctx := r.tree.GetNodeCtx(node)
	if nctx == nil {
		return fuse.ENOENT
	}
	defer nctx.Close()
	out.NodeId = node
	out.Attr = nctx.Attr()
	out.SetAttrTimeout(secondsToDuration(r.tree.Config().AttrTimeout))
	out.SetEntryTimeout(secondsToDuration(r.tree.Config().EntryTimeout))
	return fuse.OK
}

// Mknod stages a new, not-yet-uploaded file: a local scratch file backs it
// until Release triggers the actual upload_file call (§4.7's write-then-
// upload path). Create (open(O_CREAT)) follows the same path.
func (r *FuseRaw) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	return r.stageCreate(input.NodeId, name, out)
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	status := r.stageCreate(input.NodeId, name, &out.EntryOut)
	if status != fuse.OK {
		return status
	}
	out.Fh = out.EntryOut.NodeId
	return fuse.OK
}

func (r *FuseRaw) stageCreate(parentID uint64, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Create")

	nodeID, err := r.tree.MakeFileNode(parentID, name)
	if err != nil {
		logger.Warn().Err(err).Str("name", name).Msg("create failed")
		return fuse.ENOENT
	}

	f, err := os.CreateTemp(r.tree.Config().ScratchDir(), "cloudkit-upload-*")
	if err != nil {
		logger.Warn().Err(err).Msg("create scratch file failed")
		return fuse.EIO
	}
	r.tree.StageCreate(nodeID, &vfs.CreatedNode{
		ParentNodeID: parentID,
		Filename:     name,
		CachePath:    f.Name(),
		OpenFile:     f,
	})

	nctx := r.tree.GetNodeCtx(nodeID)
	if nctx == nil {
		return fuse.ENOENT
	}
	defer nctx.Close()
	out.NodeId = nodeID
	out.Attr = nctx.Attr()
	out.SetAttrTimeout(secondsToDuration(r.tree.Config().AttrTimeout))
	out.SetEntryTimeout(secondsToDuration(r.tree.Config().EntryTimeout))
	return fuse.OK
}

// Unlink deletes a file on the provider and detaches it from the tree.
func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return r.remove(cancel, header.NodeId, name)
}

// Rmdir deletes a directory on the provider and detaches it from the tree.
func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return r.remove(cancel, header.NodeId, name)
}

func (r *FuseRaw) remove(cancel <-chan struct{}, parentID uint64, name string) fuse.Status {
	logger := util.GetLogger("Fuse.Remove")
	ctx, done := r.requestCtx(cancel)
	defer done()

	child := r.tree.GetChildCtx(parentID, name)
	if child == nil {
		return fuse.ENOENT
	}
	item := child.Item()
	nodeID := child.NodeID()
	child.Close()

	if created, ok := r.tree.LookupStagedCreate(nodeID); ok {
		_ = created.Close()
		os.Remove(created.CachePath)
		r.tree.DropStagedCreate(nodeID)
		r.tree.RemoveChildByID(parentID, name)
		return fuse.OK
	}

	res := r.tree.Provider().DeleteItem(ctx, item).Result(ctx)
	if !res.IsOk() {
		logger.Warn().Err(res.Err).Str("name", name).Msg("remove failed")
		return statusFromError(res.Err)
	}
	r.tree.RemoveChildByID(parentID, name)
	return fuse.OK
}

// Rename delegates to rename_item within one parent, or to move_item
// followed by rename_item (if the leaf name also changed) across parents
// (§4.7). Both directories being registered nodes of the same tree already
// rules out the cross-provider case the base spec calls out.
func (r *FuseRaw) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	logger := util.GetLogger("Fuse.Rename")
	ctx, done := r.requestCtx(cancel)
	defer done()

	child := r.tree.GetChildCtx(input.NodeId, oldName)
	if child == nil {
		return fuse.ENOENT
	}
	item := child.Item()
	nodeID := child.NodeID()
	child.Close()

	if input.NodeId == input.Newdir {
		res := r.tree.Provider().RenameItem(ctx, item, newName).Result(ctx)
		if !res.IsOk() {
			logger.Warn().Err(res.Err).Msg("rename failed")
			return statusFromError(res.Err)
		}
		if err := r.tree.RenameChild(input.NodeId, oldName, newName); err != nil {
			logger.Warn().Err(err).Msg("rename tree update failed")
			return fuse.EIO
		}
		r.tree.BindItem(nodeID, res.Value)
		return fuse.OK
	}

	newParent := r.tree.GetNodeCtx(input.Newdir)
	if newParent == nil {
		return fuse.ENOENT
	}
	newParentItem := newParent.Item()
	newParent.Close()

	res := r.tree.Provider().MoveItem(ctx, item, newParentItem).Result(ctx)
	if !res.IsOk() {
		logger.Warn().Err(res.Err).Msg("move failed")
		return statusFromError(res.Err)
	}
	moved := res.Value
	if oldName != newName {
		renameRes := r.tree.Provider().RenameItem(ctx, moved, newName).Result(ctx)
		if !renameRes.IsOk() {
			logger.Warn().Err(renameRes.Err).Msg("post-move rename failed")
			return statusFromError(renameRes.Err)
		}
		moved = renameRes.Value
	}
	if err := r.tree.ReparentChild(input.NodeId, input.Newdir, oldName, newName); err != nil {
		logger.Warn().Err(err).Msg("move tree update failed")
		return fuse.EIO
	}
	r.tree.BindItem(nodeID, moved)
	return fuse.OK
}
