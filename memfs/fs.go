// Package memfs is the storage engine of poolfs: a flat directory of files
// whose contents live in blocks of a fixed-size memory pool.
//
// All state is volatile. A FileSystem serializes every operation behind a
// single mutex; block ids released by a truncate or remove may be handed
// to another file straight away, so reads take the lock as well.
package memfs

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"

	"github.com/poolfs/poolfs/pool"
)

var log = logging.Logger("memfs")

// FileSystem is an in-memory, single directory filesystem.
type FileSystem struct {
	mu      sync.Mutex
	pool    *pool.Pool
	dir     *directory
	extents extents
	clock   clock.Clock
}

type options struct {
	clock  clock.Clock
	blocks int
}

// Option configures a FileSystem.
type Option func(*options)

// WithClock sets the clock used for file timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithBlocks sets the number of pool blocks. Defaults to
// pool.DefaultBlocks.
func WithBlocks(n int) Option {
	return func(o *options) {
		o.blocks = n
	}
}

// New builds a filesystem and allocates its root record in slot 0.
func New(opts ...Option) (*FileSystem, error) {
	o := options{
		clock:  clock.New(),
		blocks: pool.DefaultBlocks,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.blocks <= 0 {
		return nil, fmt.Errorf("invalid block count %d", o.blocks)
	}

	p := pool.New(o.blocks)
	dir, err := newDirectory(p, o.clock.Now())
	if err != nil {
		return nil, err
	}
	return &FileSystem{
		pool:    p,
		dir:     dir,
		extents: extents{pool: p},
		clock:   o.clock,
	}, nil
}

// Now reads the filesystem clock.
func (fs *FileSystem) Now() time.Time {
	return fs.clock.Now()
}

// Root returns the attributes of the root directory.
func (fs *FileSystem) Root() Attr {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dir.root.attr()
}

// Stat returns the attributes of the named file.
func (fs *FileSystem) Stat(name string) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.dir.lookup(name)
	if err != nil {
		return Attr{}, err
	}
	return n.attr(), nil
}

// List returns every file, newest first.
func (fs *FileSystem) List() []Entry {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	nodes := fs.dir.list()
	out := make([]Entry, len(nodes))
	for i, n := range nodes {
		out[i] = Entry{Name: n.name, Attr: n.attr()}
	}
	return out
}

// Create makes a new empty regular file. Only the permission bits of mode
// are kept.
func (fs *FileSystem) Create(name string, mode os.FileMode, uid, gid uint32) (Attr, error) {
	if err := validName(name); err != nil {
		return Attr{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := fs.dir.lookup(name); err == nil {
		return Attr{}, ErrExist
	}
	n, err := fs.dir.create(name, mode.Perm(), uid, gid, fs.clock.Now())
	if err != nil {
		return Attr{}, err
	}
	log.Debugf("created %q in block %d", name, n.self)
	return n.attr(), nil
}

// Open checks that the named file exists. No per-open state is kept.
func (fs *FileSystem) Open(name string) error {
	_, err := fs.Stat(name)
	return err
}

// ReadAt reads from the named file into p starting at off and returns the
// number of bytes read, which is zero at or past the end of the file.
func (fs *FileSystem) ReadAt(name string, p []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.dir.lookup(name)
	if err != nil {
		return 0, err
	}
	read, err := readAt(fs.pool, n, p, off)
	if err != nil {
		return 0, err
	}
	n.atime = fs.clock.Now()
	return read, nil
}

// WriteAt writes p to the named file at off, growing the file as needed.
func (fs *FileSystem) WriteAt(name string, p []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.dir.lookup(name)
	if err != nil {
		return 0, err
	}
	written, err := writeAt(fs.pool, fs.extents, n, p, off)
	if err != nil {
		log.Debugf("write of %d bytes at %d to %q: %s", len(p), off, name, err)
		return 0, err
	}
	if written > 0 {
		now := fs.clock.Now()
		n.mtime, n.ctime = now, now
	}
	return written, nil
}

// Truncate changes the size of the named file.
func (fs *FileSystem) Truncate(name string, size int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.dir.lookup(name)
	if err != nil {
		return err
	}
	return fs.truncate(n, size)
}

func (fs *FileSystem) truncate(n *Node, size int64) error {
	if err := truncate(fs.pool, fs.extents, n, size); err != nil {
		return err
	}
	now := fs.clock.Now()
	n.mtime, n.ctime = now, now
	return nil
}

// Remove deletes the named file and frees all of its blocks.
func (fs *FileSystem) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.dir.remove(name); err != nil {
		return err
	}
	log.Debugf("removed %q", name)
	return nil
}

// SetAttr describes an attribute change. Nil fields are left alone.
type SetAttr struct {
	Size  *uint64
	Mode  *os.FileMode
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
}

// SetAttr applies a to the named file and returns the new attributes. A
// size change is applied first; if it fails nothing else changes.
// Permission bits, owner and group are stored but never enforced.
func (fs *FileSystem) SetAttr(name string, a SetAttr) (Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.dir.lookup(name)
	if err != nil {
		return Attr{}, err
	}
	if a.Size != nil {
		if *a.Size > MaxFileSize {
			return Attr{}, ErrFileTooLarge
		}
		if err := fs.truncate(n, int64(*a.Size)); err != nil {
			return Attr{}, err
		}
	}

	now := fs.clock.Now()
	if a.Mode != nil {
		n.mode = a.Mode.Perm()
		n.ctime = now
	}
	if a.Uid != nil {
		n.uid = *a.Uid
		n.ctime = now
	}
	if a.Gid != nil {
		n.gid = *a.Gid
		n.ctime = now
	}
	if a.Atime != nil {
		n.atime = *a.Atime
	}
	if a.Mtime != nil {
		n.mtime = *a.Mtime
		n.ctime = now
	}
	return n.attr(), nil
}

// Usage is a snapshot of pool and directory occupancy.
type Usage struct {
	BlockSize   uint32
	Blocks      uint64
	FreeBlocks  uint64
	Files       uint64
	BytesStored uint64
}

// Statfs reports pool usage.
func (fs *FileSystem) Statfs() Usage {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u := Usage{
		BlockSize:  pool.BlockSize,
		Blocks:     uint64(fs.pool.Len()),
		FreeBlocks: uint64(fs.pool.Free()),
		Files:      uint64(len(fs.dir.nodes)),
	}
	for _, n := range fs.dir.nodes {
		u.BytesStored += uint64(n.size)
	}
	return u
}

// Verify checks the structural invariants of the filesystem: every
// allocated block has exactly one owner, extent lists match file sizes
// and the directory chain reaches every node exactly once.
func (fs *FileSystem) Verify() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	owners := make(map[pool.BlockID]string)
	claim := func(id pool.BlockID, owner string) error {
		if !fs.pool.Allocated(id) {
			return fmt.Errorf("%s references free block %d", owner, id)
		}
		if prev, ok := owners[id]; ok {
			return fmt.Errorf("block %d owned by both %s and %s", id, prev, owner)
		}
		owners[id] = owner
		return nil
	}

	if err := claim(fs.dir.root.self, "root"); err != nil {
		return err
	}
	var chained []*Node
	for id := fs.dir.root.next; id != noBlock; {
		n, ok := fs.dir.nodes[id]
		if !ok {
			return fmt.Errorf("directory chain points at unknown node %d", id)
		}
		if len(chained) == len(fs.dir.nodes) {
			return fmt.Errorf("directory chain longer than %d nodes", len(fs.dir.nodes))
		}
		chained = append(chained, n)
		id = n.next
	}
	if len(chained) != len(fs.dir.nodes) {
		return fmt.Errorf("directory chain reaches %d of %d nodes", len(chained), len(fs.dir.nodes))
	}

	names := make(map[string]bool)
	for _, n := range chained {
		if names[n.name] {
			return fmt.Errorf("duplicate name %q", n.name)
		}
		names[n.name] = true

		if err := claim(n.self, fmt.Sprintf("metadata of %q", n.name)); err != nil {
			return err
		}
		if len(n.extents) > MaxBlocksPerFile {
			return fmt.Errorf("%q holds %d blocks", n.name, len(n.extents))
		}
		if want := blocksFor(n.size); len(n.extents) != want {
			return fmt.Errorf("%q has size %d but %d blocks, want %d", n.name, n.size, len(n.extents), want)
		}
		for _, id := range n.extents {
			if err := claim(id, fmt.Sprintf("extent of %q", n.name)); err != nil {
				return err
			}
		}
	}

	if len(owners) != fs.pool.Used() {
		return fmt.Errorf("%d blocks allocated but %d owned", fs.pool.Used(), len(owners))
	}
	return nil
}
