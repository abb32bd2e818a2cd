package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/vfs"
)

// sizedFileReader adapts an *os.File into cloudkit.UploadReader, the same
// shape fusebridge's Release path uses for a staged create's scratch file.
type sizedFileReader struct {
	f    *os.File
	size uint64
}

func (r *sizedFileReader) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *sizedFileReader) Size() (uint64, bool)        { return r.size, true }

// runList prints one line per entry in the directory at path (or, if path
// names a file, one line for that file alone), following §4.7's
// pagination-consumed-fully listing semantics via Tree.EnsureListed.
func runList(ctx context.Context, tree *vfs.Tree, path string) error {
	nctx, err := walkPath(ctx, tree, path)
	if err != nil {
		return err
	}
	item := nctx.Item()
	nodeID := nctx.NodeID()
	nctx.Close()

	if !item.IsDir() {
		printItem(item)
		return nil
	}

	if err := tree.EnsureListed(ctx, nodeID); err != nil {
		return err
	}
	nctx = tree.GetNodeCtx(nodeID)
	if nctx == nil {
		return fmt.Errorf("%s: not found", path)
	}
	defer nctx.Close()
	for _, child := range nctx.UnsafeChildren() {
		printItem(child.Item())
	}
	return nil
}

func printItem(item cloudkit.Item) {
	size := "-"
	if item.Size != nil {
		size = fmt.Sprintf("%d", *item.Size)
	}
	kind := "file"
	if item.IsDir() {
		kind = "dir"
	}
	fmt.Printf("%-4s %10s  %s\n", kind, size, item.Filename)
}

// runDownload streams remotePath's full contents to localPath.
func runDownload(ctx context.Context, tree *vfs.Tree, remotePath, localPath string) error {
	nctx, err := walkPath(ctx, tree, remotePath)
	if err != nil {
		return err
	}
	item := nctx.Item()
	nctx.Close()
	if item.IsDir() {
		return fmt.Errorf("%s: is a directory", remotePath)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := cloudkit.Range{Start: 0, Size: cloudkit.FullRange}
	res := tree.Provider().DownloadFile(ctx, item, rng, f).Result(ctx)
	if !res.IsOk() {
		return res.Err
	}
	return nil
}

// runUpload reads localPath in full and uploads it as remotePath's leaf
// name under remotePath's parent directory.
func runUpload(ctx context.Context, tree *vfs.Tree, localPath, remotePath string) error {
	dir, leaf := parentPath(remotePath)
	if leaf == "" {
		return fmt.Errorf("%s: no filename component", remotePath)
	}

	parent, err := walkPath(ctx, tree, dir)
	if err != nil {
		return err
	}
	parentItem := parent.Item()
	parent.Close()

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	reader := &sizedFileReader{f: f, size: uint64(info.Size())}
	res := tree.Provider().UploadFile(ctx, parentItem, leaf, reader).Result(ctx)
	if !res.IsOk() {
		return res.Err
	}
	return nil
}

// runMkdir creates a new directory named by path's leaf under its parent.
func runMkdir(ctx context.Context, tree *vfs.Tree, path string) error {
	dir, leaf := parentPath(path)
	if leaf == "" {
		return fmt.Errorf("%s: no directory name component", path)
	}
	parent, err := walkPath(ctx, tree, dir)
	if err != nil {
		return err
	}
	parentItem := parent.Item()
	parent.Close()

	res := tree.Provider().CreateDirectory(ctx, parentItem, leaf).Result(ctx)
	if !res.IsOk() {
		return res.Err
	}
	return nil
}

// runRm deletes the item at path.
func runRm(ctx context.Context, tree *vfs.Tree, path string) error {
	nctx, err := walkPath(ctx, tree, path)
	if err != nil {
		return err
	}
	item := nctx.Item()
	nctx.Close()

	res := tree.Provider().DeleteItem(ctx, item).Result(ctx)
	if !res.IsOk() {
		return res.Err
	}
	return nil
}

// runMv renames or moves src to dst, matching §4.7's rename/move dispatch:
// same parent renames in place, different parents move then (if the leaf
// also changed) rename.
func runMv(ctx context.Context, tree *vfs.Tree, src, dst string) error {
	srcCtx, err := walkPath(ctx, tree, src)
	if err != nil {
		return err
	}
	item := srcCtx.Item()
	srcCtx.Close()

	srcDir, _ := parentPath(src)
	dstDir, dstLeaf := parentPath(dst)
	if dstLeaf == "" {
		return fmt.Errorf("%s: no filename component", dst)
	}

	if srcDir == dstDir {
		res := tree.Provider().RenameItem(ctx, item, dstLeaf).Result(ctx)
		if !res.IsOk() {
			return res.Err
		}
		return nil
	}

	dstParentCtx, err := walkPath(ctx, tree, dstDir)
	if err != nil {
		return err
	}
	dstParentItem := dstParentCtx.Item()
	dstParentCtx.Close()

	moveRes := tree.Provider().MoveItem(ctx, item, dstParentItem).Result(ctx)
	if !moveRes.IsOk() {
		return moveRes.Err
	}
	moved := moveRes.Value
	if moved.Filename != dstLeaf {
		renameRes := tree.Provider().RenameItem(ctx, moved, dstLeaf).Result(ctx)
		if !renameRes.IsOk() {
			return renameRes.Err
		}
	}
	return nil
}
