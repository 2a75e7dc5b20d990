package memfs

import (
	"os"
	"strings"
	"time"

	"github.com/poolfs/poolfs/pool"
)

const (
	// MaxBlocksPerFile bounds the extent list of a single file.
	MaxBlocksPerFile = 10240

	// MaxFileSize is the largest size a file can reach.
	MaxFileSize = MaxBlocksPerFile * pool.BlockSize

	// MaxNameLen is the longest file name accepted, in bytes.
	MaxNameLen = 255

	// RootName is the name of the root record.
	RootName = "."
)

// noBlock terminates the directory chain.
const noBlock pool.BlockID = -1

// Attr holds the stat information of a file.
type Attr struct {
	Inode  uint64
	Mode   os.FileMode
	Uid    uint32
	Gid    uint32
	Nlink  uint32
	Size   uint64
	Blocks uint64 // pool blocks held by the extent list
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
}

// Entry is a single directory listing record.
type Entry struct {
	Name string
	Attr Attr
}

// Node is the metadata record of one file. The record itself occupies the
// pool block at self; extents holds the data blocks in logical order.
type Node struct {
	name    string
	self    pool.BlockID
	next    pool.BlockID
	extents []pool.BlockID
	size    int64

	mode         os.FileMode
	uid, gid     uint32
	nlink        uint32
	atime, mtime time.Time
	ctime        time.Time
}

// Name returns the file name.
func (n *Node) Name() string {
	return n.name
}

// Size returns the file size in bytes.
func (n *Node) Size() int64 {
	return n.size
}

// Extents returns a copy of the extent list.
func (n *Node) Extents() []pool.BlockID {
	return append([]pool.BlockID(nil), n.extents...)
}

func (n *Node) attr() Attr {
	return Attr{
		Inode:  inode(n.self),
		Mode:   n.mode,
		Uid:    n.uid,
		Gid:    n.gid,
		Nlink:  n.nlink,
		Size:   uint64(n.size),
		Blocks: uint64(len(n.extents)),
		Atime:  n.atime,
		Mtime:  n.mtime,
		Ctime:  n.ctime,
	}
}

// inode numbers follow the metadata slot, so the root at slot 0 is inode 1.
func inode(id pool.BlockID) uint64 {
	return uint64(id) + 1
}

// blocksFor returns the number of blocks needed to hold size bytes.
func blocksFor(size int64) int {
	return int((size + pool.BlockSize - 1) / pool.BlockSize)
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalid
	case strings.ContainsAny(name, "/\x00"):
		return ErrInvalid
	case len(name) > MaxNameLen:
		return ErrNameTooLong
	}
	return nil
}
