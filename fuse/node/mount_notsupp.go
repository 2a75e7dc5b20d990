//go:build !nofuse && !linux && !darwin && !freebsd

package node

import (
	"context"
	"errors"
)

func Mount(ctx context.Context, node *Node, mountpoint string, allowOther bool) error {
	return errors.New("FUSE not supported on this platform")
}

func Unmount(node *Node) {}
