package fusebridge

import (
	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// OpenDir is a no-op beyond confirming the node exists and is a directory;
// ReadDir re-derives its listing from the node registry on every call
// rather than pinning a cursor to a file handle.
func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	nctx := r.tree.GetNodeCtx(input.NodeId)
	if nctx == nil {
		return fuse.ENOENT
	}
	defer nctx.Close()
	if !nctx.Item().IsDir() {
		return fuse.ENOTDIR
	}
	out.Fh = input.NodeId
	return fuse.OK
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {}

// ReadDir lists a directory's children, fetching the provider's full
// listing first if it hasn't been cached yet. Entries are addressed by a
// stable index into the child slice: "." at 0, ".." at 1, real children
// from 2, matching how the kernel replays input.Offset across successive
// calls when a response doesn't fit in one buffer.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	ctx, done := r.requestCtx(cancel)
	defer done()

	if err := r.tree.EnsureListed(ctx, input.NodeId); err != nil {
		logger.Warn().Err(err).Uint64("node", input.NodeId).Msg("readdir listing failed")
		return fuse.EIO
	}

	nctx := r.tree.GetNodeCtx(input.NodeId)
	if nctx == nil {
		return fuse.ENOENT
	}
	children := nctx.UnsafeChildren()
	selfIno := nctx.Attr().Ino
	nctx.Close()

	idx := uint64(0)
	if input.Offset <= idx {
		if !out.AddDirEntry(fuse.DirEntry{Name: ".", Mode: fuse.S_IFDIR, Ino: selfIno}) {
			return fuse.OK
		}
	}
	idx++
	if input.Offset <= idx {
		if !out.AddDirEntry(fuse.DirEntry{Name: "..", Mode: fuse.S_IFDIR, Ino: selfIno}) {
			return fuse.OK
		}
	}
	idx++

	for _, child := range children {
		if idx < input.Offset {
			idx++
			continue
		}
		attr := child.CopyAttr()
		if !out.AddDirEntry(fuse.DirEntry{Name: child.Name(), Mode: attr.Mode, Ino: attr.Ino}) {
			return fuse.OK
		}
		idx++
	}
	return fuse.OK
}
