// Package pool implements the fixed-capacity block pool backing poolfs.
//
// Every byte stored in the filesystem lives in one of the pool's
// equally sized blocks. A block is owned by at most one party at a time:
// the root record, the metadata of a single file, or a single entry in a
// file's extent list.
package pool

import (
	"errors"
	"fmt"
)

const (
	// BlockSize is the size of every block in bytes.
	BlockSize = 32768

	// DefaultBlocks is the number of blocks of a full size pool, which gives
	// exactly 2 GiB of addressable capacity.
	DefaultBlocks = 65536
)

// ErrExhausted is returned when no free slot is left in the pool.
var ErrExhausted = errors.New("block pool exhausted")

// BlockID identifies a slot of the pool.
type BlockID int32

// Pool is a fixed set of BlockSize blocks.
//
// Free slots are found by scanning forward from the slot following the
// last allocation, wrapping around. Release moves the cursor just before
// the released slot so freed space is reused first. Under low
// fragmentation this makes Allocate O(1) amortized; a nearly full and
// fragmented pool degrades to an O(Len()) scan.
//
// Pool is not safe for concurrent use.
type Pool struct {
	blocks [][]byte
	used   []bool
	free   int
	cursor int
}

// New returns a pool of n blocks, all free. Memory for a block is only
// taken once it is allocated.
func New(n int) *Pool {
	if n <= 0 {
		panic(fmt.Sprintf("pool: invalid block count %d", n))
	}
	return &Pool{
		blocks: make([][]byte, n),
		used:   make([]bool, n),
		free:   n,
		// the first scan starts at slot 0
		cursor: n - 1,
	}
}

// Len returns the total number of slots.
func (p *Pool) Len() int {
	return len(p.blocks)
}

// Free returns the number of free slots.
func (p *Pool) Free() int {
	return p.free
}

// Used returns the number of allocated slots.
func (p *Pool) Used() int {
	return len(p.blocks) - p.free
}

// Cursor returns the slot of the last allocation.
func (p *Pool) Cursor() BlockID {
	return BlockID(p.cursor)
}

// Allocate takes the next free slot and returns it with zeroed memory.
func (p *Pool) Allocate() (BlockID, error) {
	if p.free == 0 {
		return 0, ErrExhausted
	}

	n := len(p.blocks)
	for i, slot := 0, (p.cursor+1)%n; i < n; i, slot = i+1, (slot+1)%n {
		if p.used[slot] {
			continue
		}
		p.used[slot] = true
		p.blocks[slot] = make([]byte, BlockSize)
		p.free--
		p.cursor = slot
		return BlockID(slot), nil
	}

	// free count says otherwise, but never hand out an owned slot
	return 0, ErrExhausted
}

// Release returns a slot to the pool. Releasing a free or out of range
// slot is a bug in the caller and panics.
func (p *Pool) Release(id BlockID) {
	if !p.Allocated(id) {
		panic(fmt.Sprintf("pool: release of unallocated block %d", id))
	}

	n := len(p.blocks)
	p.used[id] = false
	p.blocks[id] = nil
	p.free++
	p.cursor = (int(id) - 1 + n) % n
}

// Allocated reports whether id is a valid, allocated slot.
func (p *Pool) Allocated(id BlockID) bool {
	return id >= 0 && int(id) < len(p.blocks) && p.used[id]
}

// Block returns the memory of an allocated slot.
func (p *Pool) Block(id BlockID) []byte {
	if !p.Allocated(id) {
		panic(fmt.Sprintf("pool: access to unallocated block %d", id))
	}
	return p.blocks[id]
}
