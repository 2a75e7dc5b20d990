package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pbnjay/memory"

	mount "github.com/poolfs/poolfs/fuse/mount"
	engine "github.com/poolfs/poolfs/memfs"
	"github.com/poolfs/poolfs/misc/fsutil"
)

var log = logging.Logger("fuse/node")

// fuseNoDirectory used to check the returning fuse error.
const fuseNoDirectory = "fusermount: failed to access mountpoint"

// fuseExitStatus1 used to check the returning fuse error.
const fuseExitStatus1 = "fusermount: exit status 1"

// Node is a filesystem engine and its live mount, if any.
type Node struct {
	FS    *engine.FileSystem
	Mount mount.Mount
}

// totalMemory is swapped out by tests.
var totalMemory = memory.TotalMemory

// checkMountpoint fails unless mountpoint is an existing directory.
func checkMountpoint(mountpoint string) error {
	if !fsutil.IsDir(mountpoint) {
		return fmt.Errorf("mountpoint %s is not an existing directory", mountpoint)
	}
	return nil
}

// checkMemory warns when the pool could grow past the memory of the host.
// Blocks are only backed by memory once allocated, so this is not fatal.
func checkMemory(fs *engine.FileSystem) {
	u := fs.Statfs()
	capacity := u.Blocks * uint64(u.BlockSize)
	total := totalMemory()
	if total == 0 || capacity <= total {
		return
	}
	log.Warnf("pool capacity %s exceeds host memory %s, large writes may be killed by the OOM killer",
		humanize.IBytes(capacity), humanize.IBytes(total))
}

func fmtFuseErr(err error, mountpoint string) error {
	s := err.Error()
	if strings.Contains(s, fuseNoDirectory) {
		s = strings.Replace(s, `fusermount: "fusermount:`, "", -1)
		s = strings.Replace(s, `\n", exit status 1`, "", -1)
		return errors.New(s)
	}
	if s == fuseExitStatus1 {
		s = fmt.Sprintf("fuse failed to access mountpoint %s", mountpoint)
		return errors.New(s)
	}
	return err
}
