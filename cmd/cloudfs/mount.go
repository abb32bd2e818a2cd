package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudkit/cloudkit/daemon"
	"github.com/cloudkit/cloudkit/fusebridge"
	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/cloudkit/cloudkit/vfs"
	"github.com/google/uuid"
)

// runMount mounts the backend's provider at mountPoint and blocks until a
// termination signal is received, the same shutdown shape as the
// teacher's cmd/main.go: signal.Notify on SIGINT/SIGTERM/SIGQUIT, then
// unmount on receipt.
func runMount(ctx context.Context, tree *vfs.Tree, mountPoint string) error {
	logger := util.GetLogger("cloudfs.mount")

	mountCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d, err := daemon.New(fmt.Sprintf("127.0.0.1:%d", tree.Config().HTTPPort), uuid.NewString())
	if err != nil {
		return fmt.Errorf("start local daemon: %w", err)
	}
	d.RegisterProvider(tree.Provider().Label(), tree.Provider())
	go func() {
		if err := d.Serve(); err != nil {
			logger.Warn().Err(err).Msg("local daemon stopped")
		}
	}()
	defer d.Shutdown()

	mount, err := fusebridge.NewMount(mountCtx, tree, mountPoint, tree.Config().MountOptions)
	if err != nil {
		return fmt.Errorf("build fuse mount: %w", err)
	}
	if err := mount.Serve(); err != nil {
		return fmt.Errorf("serve fuse mount: %w", err)
	}
	logger.Info().Str("mountpoint", mountPoint).Msg("mounted")

	treeErrCh := make(chan error, 1)
	go func() {
		treeErrCh <- tree.Run(mountCtx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	treeStopped := false
	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("received signal, unmounting")
	case err := <-treeErrCh:
		treeStopped = true
		if err != nil {
			logger.Warn().Err(err).Msg("tree worker stopped")
		}
	}

	cancel()
	if err := mount.Unmount(); err != nil {
		logger.Error().Err(err).Msg("unmount failed")
		return err
	}
	if !treeStopped {
		<-treeErrCh
	}
	logger.Info().Msg("unmounted")
	return nil
}
