package fusebridge

import (
	"io"
	"os"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Open confirms the node exists; the node ID doubles as the file handle
// (see the package doc comment), so there's no separate handle to
// allocate.
func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	nctx := r.tree.GetNodeCtx(input.NodeId)
	if nctx == nil {
		return fuse.ENOENT
	}
	defer nctx.Close()
	out.Fh = input.NodeId
	return fuse.OK
}

// Read serves bytes from a CreatedNode's local scratch file while the file
// is still being written, or issues a ranged download_file against the
// provider otherwise; ranges past the item's reported size clamp to EOF
// (§4.7).
func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	logger := util.GetLogger("Fuse.Read")

	if created, ok := r.tree.LookupStagedCreate(input.NodeId); ok {
		n, err := created.OpenFile.ReadAt(buf, int64(input.Offset))
		if err != nil && err != io.EOF {
			logger.Warn().Err(err).Msg("read from scratch file failed")
			return nil, fuse.EIO
		}
		return fuse.ReadResultData(buf[:n]), fuse.OK
	}

	ctx, done := r.requestCtx(cancel)
	defer done()

	nctx := r.tree.GetNodeCtx(input.NodeId)
	if nctx == nil {
		return nil, fuse.ENOENT
	}
	item := nctx.Item()
	nctx.Close()

	rng := cloudkit.Range{Start: input.Offset, Size: uint64(len(buf))}
	if item.Size != nil {
		rng = rng.Clamp(*item.Size)
		if rng.Size == 0 {
			return fuse.ReadResultData(nil), fuse.OK
		}
	}

	sink := &sliceWriter{buf: buf}
	res := r.tree.Provider().DownloadFile(ctx, item, rng, sink).Result(ctx)
	if !res.IsOk() {
		logger.Warn().Err(res.Err).Msg("download failed")
		return nil, statusFromError(res.Err)
	}
	return fuse.ReadResultData(buf[:sink.written]), fuse.OK
}

// Write is only legal on a CreatedNode; random-access writes to an
// already-uploaded item aren't supported (§4.7).
func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	created, ok := r.tree.LookupStagedCreate(input.NodeId)
	if !ok {
		return 0, fuse.EINVAL
	}

	n, err := created.OpenFile.WriteAt(data, int64(input.Offset))
	if err != nil {
		return 0, fuse.EIO
	}

	end := input.Offset + uint64(n)
	if info, statErr := created.OpenFile.Stat(); statErr == nil && uint64(info.Size()) > end {
		end = uint64(info.Size())
	}
	r.tree.SetNodeSize(input.NodeId, end)
	return uint32(n), fuse.OK
}

func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	if created, ok := r.tree.LookupStagedCreate(input.NodeId); ok {
		if err := created.OpenFile.Sync(); err != nil {
			return fuse.EIO
		}
	}
	return fuse.OK
}

// Release triggers the upload_file call for a CreatedNode (§4.7's release
// semantics): the upload runs against the mount's own context, outliving
// this call, and the scratch file is only removed once the upload's final
// callback fires, success or failure alike.
func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	logger := util.GetLogger("Fuse.Release")

	created, ok := r.tree.LookupStagedCreate(input.NodeId)
	if !ok {
		return
	}

	parent := r.tree.GetNodeCtx(created.ParentNodeID)
	if parent == nil {
		logger.Warn().Uint64("parent", created.ParentNodeID).Msg("release: parent node gone")
		return
	}
	parentItem := parent.Item()
	parent.Close()

	if err := created.OpenFile.Sync(); err != nil {
		logger.Warn().Err(err).Msg("release: sync scratch file failed")
	}
	info, err := created.OpenFile.Stat()
	var size uint64
	if err == nil {
		size = uint64(info.Size())
	}

	reader, err := os.Open(created.CachePath)
	if err != nil {
		logger.Warn().Err(err).Msg("release: reopen scratch file failed")
		return
	}

	nodeID := input.NodeId
	upload := r.tree.Provider().UploadFile(r.mountCtx, parentItem, created.Filename, &sizedFileReader{f: reader, size: size})
	r.tree.Requests.Track(upload)

	go func() {
		defer reader.Close()
		res := upload.Result(r.mountCtx)
		if res.IsOk() {
			r.tree.BindItem(nodeID, res.Value)
		} else {
			logger.Warn().Err(res.Err).Str("name", created.Filename).Msg("upload failed")
		}
		_ = created.Close()
		os.Remove(created.CachePath)
		r.tree.DropStagedCreate(nodeID)
	}()
}

// sliceWriter accumulates a DownloadFile stream into a caller-supplied
// buffer, matching the fixed-size buffer FUSE hands Read.
type sliceWriter struct {
	buf     []byte
	written int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.written:], p)
	w.written += n
	return n, nil
}

// sizedFileReader adapts an *os.File into cloudkit.UploadReader.
type sizedFileReader struct {
	f    *os.File
	size uint64
}

func (r *sizedFileReader) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *sizedFileReader) Size() (uint64, bool)        { return r.size, true }
