//go:build (linux || darwin || freebsd) && !nofuse

package node

import (
	"context"

	memfs "github.com/poolfs/poolfs/fuse/memfs"
)

// platformFuseChecks can get overridden by arch-specific files
// to run fuse checks (like checking the OSXFUSE version).
var platformFuseChecks = func(node *Node, mountpoint string) error {
	if err := checkMountpoint(mountpoint); err != nil {
		return err
	}
	checkMemory(node.FS)
	return nil
}

// Mount serves node.FS at mountpoint until ctx is done or Unmount is
// called.
func Mount(ctx context.Context, node *Node, mountpoint string, allowOther bool) error {
	// check if we already have a live mount.
	// if the user said "Mount", then there must be something wrong.
	// so, close it and try again.
	Unmount(node)

	if err := platformFuseChecks(node, mountpoint); err != nil {
		return err
	}

	mnt, err := memfs.Mount(ctx, node.FS, mountpoint, allowOther)
	if err != nil {
		log.Errorf("error mounting %s: %s", mountpoint, err)
		return fmtFuseErr(err, mountpoint)
	}

	// setup node state, so that it can be canceled
	node.Mount = mnt
	return nil
}

// Unmount releases the live mount of node, if any.
func Unmount(node *Node) {
	if node.Mount != nil && node.Mount.IsActive() {
		// best effort
		if err := node.Mount.Unmount(); err != nil {
			log.Errorf("error unmounting %s: %s", node.Mount.MountPoint(), err)
		}
	}
}
