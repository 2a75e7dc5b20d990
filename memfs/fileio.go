package memfs

import (
	"github.com/poolfs/poolfs/pool"
)

// walk splits the byte range [off, off+length) of a node into per-block
// steps. For each step fn receives the block, the offset inside the block,
// the position relative to off and the chunk length. The extent list must
// already cover the whole range.
func walk(node *Node, off int64, length int, fn func(id pool.BlockID, at, pos, size int)) {
	index := int(off / pool.BlockSize)
	at := int(off % pool.BlockSize)
	for pos := 0; pos < length; index, at = index+1, 0 {
		size := pool.BlockSize - at
		if rest := length - pos; rest < size {
			size = rest
		}
		fn(node.extents[index], at, pos, size)
		pos += size
	}
}

// writeAt copies p into the node at off, growing the extent list first
// when the write ends past the current size. New blocks come zeroed from
// the pool, so a gap between the old end and off reads back as zeros.
func writeAt(p *pool.Pool, e extents, node *Node, data []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalid
	}
	if len(data) == 0 {
		return 0, nil
	}

	if off > MaxFileSize-int64(len(data)) {
		return 0, ErrFileTooLarge
	}
	end := off + int64(len(data))
	if end > node.size {
		if err := e.resizeTo(node, blocksFor(end)); err != nil {
			return 0, err
		}
		node.size = end
	}

	walk(node, off, len(data), func(id pool.BlockID, at, pos, size int) {
		copy(p.Block(id)[at:at+size], data[pos:pos+size])
	})
	return len(data), nil
}

// readAt copies up to len(buf) bytes of the node starting at off. Reads at
// or past the end of the file return zero bytes.
func readAt(p *pool.Pool, node *Node, buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalid
	}
	if off >= node.size {
		return 0, nil
	}

	length := len(buf)
	if rest := node.size - off; int64(length) > rest {
		length = int(rest)
	}

	walk(node, off, length, func(id pool.BlockID, at, pos, size int) {
		copy(buf[pos:pos+size], p.Block(id)[at:at+size])
	})
	return length, nil
}

// truncate resizes the node to size bytes. Bytes past the new end inside
// the last kept block are cleared so that later growth reads zeros.
func truncate(p *pool.Pool, e extents, node *Node, size int64) error {
	if size < 0 {
		return ErrInvalid
	}
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	if err := e.resizeTo(node, blocksFor(size)); err != nil {
		return err
	}

	if size < node.size {
		if at := int(size % pool.BlockSize); at != 0 {
			clear(p.Block(node.extents[size/pool.BlockSize])[at:])
		}
	}
	node.size = size
	return nil
}
