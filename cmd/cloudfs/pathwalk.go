package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudkit/cloudkit/vfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// walkPath resolves a "/"-separated path against tree the same way
// fusebridge's Lookup resolves one path component at a time, listing each
// intermediate directory as needed (§4.7's lookup path resolution). The
// root ("", "/", ".") resolves to the tree's root node without a provider
// round trip beyond EnsureRoot.
func walkPath(ctx context.Context, tree *vfs.Tree, path string) (*vfs.NodeContext, error) {
	if err := tree.EnsureRoot(ctx); err != nil {
		return nil, err
	}

	parts := splitPath(path)
	parentID := uint64(fuse.FUSE_ROOT_ID)
	var current *vfs.NodeContext
	for i, name := range parts {
		nctx, err := tree.ResolveChild(ctx, parentID, name)
		if err != nil {
			return nil, err
		}
		if nctx == nil {
			return nil, fmt.Errorf("%s: not found", path)
		}
		parentID = nctx.NodeID()
		if i == len(parts)-1 {
			current = nctx
		} else {
			nctx.Close()
		}
	}
	if current == nil {
		return tree.RootCtx(), nil
	}
	return current, nil
}

// splitPath breaks a "/"-separated path into non-empty components.
func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// parentPath splits path into its containing directory and leaf name.
func parentPath(path string) (dir, leaf string) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "/", ""
	}
	leaf = parts[len(parts)-1]
	dir = "/" + strings.Join(parts[:len(parts)-1], "/")
	return dir, leaf
}
