//go:build (linux || darwin || freebsd) && !nofuse

package memfs

import (
	"context"
	"errors"

	mount "github.com/poolfs/poolfs/fuse/mount"
	engine "github.com/poolfs/poolfs/memfs"
)

// Mount mounts the filesystem at a given location, and returns a
// mount.Mount instance. The mount is released when ctx is done.
func Mount(ctx context.Context, fsys *engine.FileSystem, mountpoint string, allowOther bool) (mount.Mount, error) {
	mnt, err := mount.NewMount(NewFileSystem(fsys), mountpoint, allowOther)
	if err != nil {
		return nil, err
	}
	context.AfterFunc(ctx, func() {
		err := mnt.Unmount()
		if err != nil && !errors.Is(err, mount.ErrNotMounted) {
			log.Errorw("failed to unmount", "mountpoint", mountpoint, "err", err)
		}
	})
	return mnt, nil
}
