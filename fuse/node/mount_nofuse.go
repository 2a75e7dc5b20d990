//go:build nofuse

package node

import (
	"context"
	"errors"
)

var errNotCompiled = errors.New("not compiled in")

func Mount(ctx context.Context, node *Node, mountpoint string, allowOther bool) error {
	return errNotCompiled
}

func Unmount(node *Node) {}
