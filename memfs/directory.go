package memfs

import (
	"fmt"
	"os"
	"time"

	"github.com/poolfs/poolfs/pool"
)

// directory threads every file node into a single chain starting at the
// root record. Nodes are kept in an arena keyed by their metadata slot;
// the chain is expressed through each node's next slot. New files are
// inserted at the head, so listing order is newest first.
type directory struct {
	pool    *pool.Pool
	extents extents
	root    *Node
	nodes   map[pool.BlockID]*Node
}

func newDirectory(p *pool.Pool, now time.Time) (*directory, error) {
	if p.Used() != 0 {
		return nil, fmt.Errorf("root must be the first allocation, %d blocks in use", p.Used())
	}
	id, err := p.Allocate()
	if err != nil {
		return nil, err
	}

	root := &Node{
		name:  RootName,
		self:  id,
		next:  noBlock,
		mode:  os.ModeDir | 0o755,
		nlink: 2,
		atime: now,
		mtime: now,
		ctime: now,
	}
	return &directory{
		pool:    p,
		extents: extents{pool: p},
		root:    root,
		nodes:   make(map[pool.BlockID]*Node),
	}, nil
}

// create allocates the metadata block of a new, empty file and puts it at
// the head of the chain. Nothing changes when it fails.
func (d *directory) create(name string, mode os.FileMode, uid, gid uint32, now time.Time) (*Node, error) {
	if d.pool.Free() == 0 {
		return nil, ErrNoSpace
	}
	id, err := d.pool.Allocate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSpace, err)
	}

	n := &Node{
		name:  name,
		self:  id,
		next:  d.root.next,
		mode:  mode,
		uid:   uid,
		gid:   gid,
		nlink: 1,
		atime: now,
		mtime: now,
		ctime: now,
	}
	d.nodes[id] = n
	d.root.next = id
	return n, nil
}

// lookup walks the chain from the head. There is no index; the pool caps
// the number of nodes.
func (d *directory) lookup(name string) (*Node, error) {
	for id := d.root.next; id != noBlock; {
		n := d.nodes[id]
		if n.name == name {
			return n, nil
		}
		id = n.next
	}
	return nil, ErrNotFound
}

// remove unlinks the node from the chain, then returns its extents and its
// own metadata block to the pool.
func (d *directory) remove(name string) error {
	prev := d.root
	for id := d.root.next; id != noBlock; {
		n := d.nodes[id]
		if n.name != name {
			prev, id = n, n.next
			continue
		}

		prev.next = n.next
		d.extents.shrink(n, len(n.extents))
		delete(d.nodes, n.self)
		d.pool.Release(n.self)
		return nil
	}
	return ErrNotFound
}

// list returns every file node in chain order.
func (d *directory) list() []*Node {
	out := make([]*Node, 0, len(d.nodes))
	for id := d.root.next; id != noBlock; {
		n := d.nodes[id]
		out = append(out, n)
		id = n.next
	}
	return out
}
