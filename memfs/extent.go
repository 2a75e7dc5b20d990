package memfs

import (
	"fmt"

	"github.com/poolfs/poolfs/pool"
)

// extents grows and shrinks the extent lists of file nodes. Only the tail
// of a list is ever touched, so a resize costs O(delta) blocks.
type extents struct {
	pool *pool.Pool
}

// grow appends n freshly allocated blocks to the node. Both limits are
// checked before the first allocation, so growth is all or nothing.
func (e extents) grow(node *Node, n int) error {
	if n > e.pool.Free() {
		return ErrNoSpace
	}
	if len(node.extents)+n > MaxBlocksPerFile {
		return ErrFileTooLarge
	}

	for ; n > 0; n-- {
		id, err := e.pool.Allocate()
		if err != nil {
			// unreachable while the free count is honest
			return fmt.Errorf("%w: %w", ErrNoSpace, err)
		}
		node.extents = append(node.extents, id)
	}
	return nil
}

// shrink releases up to n blocks from the tail of the node.
func (e extents) shrink(node *Node, n int) {
	if n > len(node.extents) {
		n = len(node.extents)
	}
	for ; n > 0; n-- {
		last := len(node.extents) - 1
		e.pool.Release(node.extents[last])
		node.extents = node.extents[:last]
	}
}

// resizeTo makes the node hold exactly target blocks.
func (e extents) resizeTo(node *Node, target int) error {
	switch delta := target - len(node.extents); {
	case delta > 0:
		return e.grow(node, delta)
	case delta < 0:
		e.shrink(node, -delta)
	}
	return nil
}
