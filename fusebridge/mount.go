package fusebridge

import (
	"context"

	"github.com/cloudkit/cloudkit/config"
	"github.com/cloudkit/cloudkit/vfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount wraps the underlying fuse.Server the way the teacher's
// internal/core/server.go Server does, generalized to build its FuseRaw
// from a vfs.Tree instead of a single hard-coded filesystem type.
type Mount struct {
	server *fuse.Server
}

// NewMount mounts tree's filesystem at mountPoint. mountCtx bounds every
// FUSE operation's provider calls and, on cancellation, the upload
// goroutines Release starts.
func NewMount(mountCtx context.Context, tree *vfs.Tree, mountPoint string, opts config.MountOptions) (*Mount, error) {
	fuseOpts := &fuse.MountOptions{
		FsName: opts.FsName,
		Name:   opts.Name,
		Debug:  opts.Debug,
	}

	raw := NewFuseRaw(mountCtx, tree)
	srv, err := fuse.NewServer(raw, mountPoint, fuseOpts)
	if err != nil {
		return nil, err
	}
	return &Mount{server: srv}, nil
}

// Serve starts serving and waits until the filesystem is mounted.
func (m *Mount) Serve() error {
	go m.server.Serve()
	return m.server.WaitMount()
}

// Unmount cleanly unmounts the filesystem.
func (m *Mount) Unmount() error {
	return m.server.Unmount()
}
