package memfs

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ipfs/go-test/random"
	"github.com/stretchr/testify/require"

	"github.com/poolfs/poolfs/pool"
)

func newTestFS(t *testing.T, opts ...Option) *FileSystem {
	t.Helper()
	fs, err := New(opts...)
	require.NoError(t, err)
	return fs
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := io.ReadFull(random.NewRand(), data)
	require.NoError(t, err)
	return data
}

func TestNewAllocatesRoot(t *testing.T) {
	fs := newTestFS(t, WithBlocks(8))
	require.Equal(t, 1, fs.pool.Used())
	require.True(t, fs.pool.Allocated(0))

	root := fs.Root()
	require.EqualValues(t, 1, root.Inode)
	require.True(t, root.Mode.IsDir())
	require.Equal(t, os.FileMode(0o755), root.Mode.Perm())
	require.Empty(t, fs.List())

	_, err := New(WithBlocks(0))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	fs := newTestFS(t, WithBlocks(64))
	_, err := fs.Create("data", 0o644, 1000, 1000)
	require.NoError(t, err)

	// spans four blocks, with a partial last block
	content := randomBytes(t, 3*pool.BlockSize+777)
	n, err := fs.WriteAt("data", content, 0)
	require.NoError(t, err)
	require.Equal(t, len(content), n)

	got := make([]byte, len(content))
	n, err = fs.ReadAt("data", got, 0)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.Equal(t, content, got)

	attr, err := fs.Stat("data")
	require.NoError(t, err)
	require.EqualValues(t, len(content), attr.Size)
	require.EqualValues(t, 4, attr.Blocks)
	require.NoError(t, fs.Verify())
}

func TestUnalignedReadWrite(t *testing.T) {
	fs := newTestFS(t, WithBlocks(64))
	_, err := fs.Create("f", 0o644, 0, 0)
	require.NoError(t, err)

	content := randomBytes(t, 2*pool.BlockSize)
	_, err = fs.WriteAt("f", content, 0)
	require.NoError(t, err)

	// overwrite across a block boundary
	patch := bytes.Repeat([]byte{0xab}, 300)
	off := int64(pool.BlockSize - 100)
	_, err = fs.WriteAt("f", patch, off)
	require.NoError(t, err)
	copy(content[off:], patch)

	got := make([]byte, 1000)
	n, err := fs.ReadAt("f", got, off-350)
	require.NoError(t, err)
	require.Equal(t, 1000, n)
	require.Equal(t, content[off-350:off+650], got)

	attr, err := fs.Stat("f")
	require.NoError(t, err)
	require.EqualValues(t, 2*pool.BlockSize, attr.Size, "overwrite does not grow the file")
}

func TestSparseZeroFill(t *testing.T) {
	fs := newTestFS(t, WithBlocks(64))
	_, err := fs.Create("sparse", 0o644, 0, 0)
	require.NoError(t, err)

	payload := []byte("0123456789")
	n, err := fs.WriteAt("sparse", payload, 100000)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	gap := make([]byte, 100000)
	for i := range gap {
		gap[i] = 0xee
	}
	n, err = fs.ReadAt("sparse", gap, 0)
	require.NoError(t, err)
	require.Equal(t, 100000, n)
	require.Equal(t, make([]byte, 100000), gap)

	tail := make([]byte, 10)
	_, err = fs.ReadAt("sparse", tail, 100000)
	require.NoError(t, err)
	require.Equal(t, payload, tail)

	attr, err := fs.Stat("sparse")
	require.NoError(t, err)
	require.EqualValues(t, 100010, attr.Size)
	require.EqualValues(t, 4, attr.Blocks)
}

func TestReadPastEOF(t *testing.T) {
	fs := newTestFS(t, WithBlocks(8))
	_, err := fs.Create("short", 0o644, 0, 0)
	require.NoError(t, err)
	_, err = fs.WriteAt("short", []byte("0123456789"), 0)
	require.NoError(t, err)

	buf := make([]byte, 100)
	for _, off := range []int64{10, 11, 1000, pool.BlockSize, MaxFileSize} {
		n, err := fs.ReadAt("short", buf, off)
		require.NoError(t, err)
		require.Zero(t, n, "offset %d", off)
	}

	n, err := fs.ReadAt("short", buf, 5)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("56789"), buf[:n])

	_, err = fs.ReadAt("short", buf, -1)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = fs.WriteAt("short", buf, -1)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestTruncateSymmetry(t *testing.T) {
	fs := newTestFS(t, WithBlocks(64))
	_, err := fs.Create("f", 0o644, 0, 0)
	require.NoError(t, err)

	original := 3*pool.BlockSize + 100
	content := randomBytes(t, original)
	_, err = fs.WriteAt("f", content, 0)
	require.NoError(t, err)
	used := fs.pool.Used()

	// shrink to one and a half blocks
	short := int64(pool.BlockSize + pool.BlockSize/2)
	require.NoError(t, fs.Truncate("f", short))
	require.Equal(t, used-2, fs.pool.Used())

	require.NoError(t, fs.Truncate("f", int64(original)))
	require.Equal(t, used, fs.pool.Used())

	got := make([]byte, original)
	n, err := fs.ReadAt("f", got, 0)
	require.NoError(t, err)
	require.Equal(t, original, n)
	require.Equal(t, content[:short], got[:short])
	require.Equal(t, make([]byte, int64(original)-short), got[short:], "bytes past the truncation point read as zero")
	require.NoError(t, fs.Verify())
}

func TestTruncateToZeroReleasesBlocks(t *testing.T) {
	fs := newTestFS(t, WithBlocks(16))
	_, err := fs.Create("f", 0o644, 0, 0)
	require.NoError(t, err)
	free := fs.pool.Free()

	_, err = fs.WriteAt("f", make([]byte, 2*pool.BlockSize+1), 0)
	require.NoError(t, err)
	require.Equal(t, free-3, fs.pool.Free())

	require.NoError(t, fs.Truncate("f", 0))
	require.Equal(t, free, fs.pool.Free())

	attr, err := fs.Stat("f")
	require.NoError(t, err)
	require.Zero(t, attr.Size)
	require.Zero(t, attr.Blocks)

	require.ErrorIs(t, fs.Truncate("f", -1), ErrInvalid)
	require.ErrorIs(t, fs.Truncate("f", MaxFileSize+1), ErrFileTooLarge)
	require.ErrorIs(t, fs.Truncate("missing", 0), ErrNotFound)
}

func TestFileTooLarge(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Create("big", 0o644, 0, 0)
	require.NoError(t, err)
	free := fs.pool.Free()

	_, err = fs.WriteAt("big", []byte{1}, MaxFileSize)
	require.ErrorIs(t, err, ErrFileTooLarge)

	n, err := fs.dir.lookup("big")
	require.NoError(t, err)
	require.ErrorIs(t, fs.extents.grow(n, MaxBlocksPerFile+1), ErrFileTooLarge)
	require.Equal(t, free, fs.pool.Free(), "rejected growth allocates nothing")
	require.Empty(t, n.extents)
}

func TestWriteOffsetOverflow(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Create("f", 0o644, 0, 0)
	require.NoError(t, err)
	free := fs.pool.Free()

	for _, off := range []int64{math.MaxInt64 - 5, math.MaxInt64, MaxFileSize - 9} {
		var werr error
		require.NotPanics(t, func() {
			_, werr = fs.WriteAt("f", make([]byte, 10), off)
		}, "offset %d", off)
		require.ErrorIs(t, werr, ErrFileTooLarge, "offset %d", off)
	}
	require.Equal(t, free, fs.pool.Free())
	require.NoError(t, fs.Verify())
}

func TestPoolExhaustion(t *testing.T) {
	const blocks = 16
	fs := newTestFS(t, WithBlocks(blocks))

	_, err := fs.Create("a", 0o644, 0, 0)
	require.NoError(t, err)
	_, err = fs.Create("b", 0o644, 0, 0)
	require.NoError(t, err)

	// root and two metadata blocks leave 13 for data
	_, err = fs.WriteAt("a", make([]byte, 6*pool.BlockSize), 0)
	require.NoError(t, err)
	_, err = fs.WriteAt("b", make([]byte, 7*pool.BlockSize), 0)
	require.NoError(t, err)
	require.Zero(t, fs.pool.Free())
	require.Equal(t, blocks, fs.pool.Used())

	_, err = fs.WriteAt("a", []byte{1}, 6*pool.BlockSize)
	require.ErrorIs(t, err, ErrNoSpace)
	attr, err := fs.Stat("a")
	require.NoError(t, err)
	require.EqualValues(t, 6*pool.BlockSize, attr.Size, "failed growth keeps the old size")

	_, err = fs.Create("c", 0o644, 0, 0)
	require.ErrorIs(t, err, ErrNoSpace)
	require.Len(t, fs.List(), 2)

	// writes inside allocated blocks still succeed on a full pool
	_, err = fs.WriteAt("b", []byte("in place"), 10)
	require.NoError(t, err)

	require.NoError(t, fs.Remove("b"))
	require.Equal(t, 8, fs.pool.Free())
	_, err = fs.Create("c", 0o644, 0, 0)
	require.NoError(t, err)
	require.NoError(t, fs.Verify())
}

func TestDirectoryIntegrity(t *testing.T) {
	fs := newTestFS(t, WithBlocks(16))
	for _, name := range []string{"A", "B", "C"} {
		_, err := fs.Create(name, 0o644, 0, 0)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"C", "B", "A"}, names(fs.List()))

	require.NoError(t, fs.Remove("B"))
	require.Equal(t, []string{"C", "A"}, names(fs.List()))

	_, err := fs.Stat("B")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, fs.Remove("B"), ErrNotFound)
	require.ErrorIs(t, fs.Open("B"), ErrNotFound)
	require.NoError(t, fs.Open("A"))

	// removing the head and the tail
	require.NoError(t, fs.Remove("C"))
	require.NoError(t, fs.Remove("A"))
	require.Empty(t, fs.List())
	require.Equal(t, 1, fs.pool.Used())
	require.NoError(t, fs.Verify())
}

func TestCreateRejectsBadNames(t *testing.T) {
	fs := newTestFS(t, WithBlocks(8))

	_, err := fs.Create("dup", 0o644, 0, 0)
	require.NoError(t, err)
	_, err = fs.Create("dup", 0o600, 0, 0)
	require.ErrorIs(t, err, ErrExist)

	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		_, err := fs.Create(name, 0o644, 0, 0)
		require.ErrorIs(t, err, ErrInvalid, "name %q", name)
	}

	_, err = fs.Create(strings.Repeat("x", MaxNameLen+1), 0o644, 0, 0)
	require.ErrorIs(t, err, ErrNameTooLong)
	_, err = fs.Create(strings.Repeat("x", MaxNameLen), 0o644, 0, 0)
	require.NoError(t, err)

	require.Equal(t, 3, fs.pool.Used())
}

func TestCreateAttributes(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	fs := newTestFS(t, WithBlocks(8), WithClock(mock))

	attr, err := fs.Create("f", os.ModeDir|0o644, 1000, 100)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), attr.Mode, "only permission bits are kept")
	require.EqualValues(t, 1000, attr.Uid)
	require.EqualValues(t, 100, attr.Gid)
	require.EqualValues(t, 1, attr.Nlink)
	require.Zero(t, attr.Size)
	require.EqualValues(t, 2, attr.Inode, "first file lands in block 1")
	require.Equal(t, mock.Now(), attr.Mtime)

	created := mock.Now()
	mock.Add(time.Minute)
	_, err = fs.WriteAt("f", []byte("hello"), 0)
	require.NoError(t, err)
	attr, err = fs.Stat("f")
	require.NoError(t, err)
	require.Equal(t, mock.Now(), attr.Mtime)
	require.Equal(t, mock.Now(), attr.Ctime)
	require.Equal(t, created, attr.Atime)

	mock.Add(time.Minute)
	_, err = fs.ReadAt("f", make([]byte, 5), 0)
	require.NoError(t, err)
	attr, err = fs.Stat("f")
	require.NoError(t, err)
	require.Equal(t, mock.Now(), attr.Atime)
}

func TestSetAttr(t *testing.T) {
	mock := clock.NewMock()
	fs := newTestFS(t, WithBlocks(8), WithClock(mock))
	_, err := fs.Create("f", 0o644, 0, 0)
	require.NoError(t, err)

	size := uint64(pool.BlockSize + 1)
	mode := os.FileMode(0o600)
	uid, gid := uint32(7), uint32(8)
	stamp := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	attr, err := fs.SetAttr("f", SetAttr{
		Size:  &size,
		Mode:  &mode,
		Uid:   &uid,
		Gid:   &gid,
		Atime: &stamp,
		Mtime: &stamp,
	})
	require.NoError(t, err)
	require.Equal(t, size, attr.Size)
	require.EqualValues(t, 2, attr.Blocks)
	require.Equal(t, mode, attr.Mode)
	require.Equal(t, uid, attr.Uid)
	require.Equal(t, gid, attr.Gid)
	require.Equal(t, stamp, attr.Atime)
	require.Equal(t, stamp, attr.Mtime)

	tooBig := uint64(MaxFileSize + 1)
	_, err = fs.SetAttr("f", SetAttr{Size: &tooBig, Mode: &mode})
	require.ErrorIs(t, err, ErrFileTooLarge)

	huge := uint64(7 * pool.BlockSize)
	_, err = fs.SetAttr("f", SetAttr{Size: &huge})
	require.ErrorIs(t, err, ErrNoSpace)
	attr, err = fs.Stat("f")
	require.NoError(t, err)
	require.Equal(t, size, attr.Size)

	_, err = fs.SetAttr("nope", SetAttr{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatfs(t *testing.T) {
	fs := newTestFS(t, WithBlocks(32))
	_, err := fs.Create("a", 0o644, 0, 0)
	require.NoError(t, err)
	_, err = fs.WriteAt("a", make([]byte, 40000), 0)
	require.NoError(t, err)

	u := fs.Statfs()
	require.EqualValues(t, pool.BlockSize, u.BlockSize)
	require.EqualValues(t, 32, u.Blocks)
	require.EqualValues(t, 32-4, u.FreeBlocks)
	require.EqualValues(t, 1, u.Files)
	require.EqualValues(t, 40000, u.BytesStored)
}

func TestNoDoubleOwnership(t *testing.T) {
	fs := newTestFS(t, WithBlocks(48))
	rng := random.NewRand()

	var live []string
	for i := 0; i < 500; i++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(live) == 0:
			name := fmt.Sprintf("f%d", i)
			if _, err := fs.Create(name, 0o644, 0, 0); err == nil {
				live = append(live, name)
			} else {
				require.ErrorIs(t, err, ErrNoSpace)
			}
		case op == 1:
			name := live[rng.Intn(len(live))]
			off := int64(rng.Intn(4 * pool.BlockSize))
			_, err := fs.WriteAt(name, make([]byte, rng.Intn(2*pool.BlockSize)+1), off)
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace)
			}
		case op == 2:
			name := live[rng.Intn(len(live))]
			err := fs.Truncate(name, int64(rng.Intn(3*pool.BlockSize)))
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace)
			}
		default:
			j := rng.Intn(len(live))
			require.NoError(t, fs.Remove(live[j]))
			live = append(live[:j], live[j+1:]...)
		}

		require.NoError(t, fs.Verify())
		require.Equal(t, fs.pool.Len(), fs.pool.Free()+fs.pool.Used())
	}
}

func TestConcurrentWriters(t *testing.T) {
	fs := newTestFS(t, WithBlocks(256))

	const writers = 8
	contents := make([][]byte, writers)
	for i := range contents {
		contents[i] = randomBytes(t, 5*pool.BlockSize/2)
		_, err := fs.Create(fmt.Sprintf("w%d", i), 0o644, 0, 0)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("w%d", i)
			// write in small pieces so growth interleaves across files
			for off := 0; off < len(contents[i]); off += 4096 {
				end := min(off+4096, len(contents[i]))
				if _, err := fs.WriteAt(name, contents[i][off:end], int64(off)); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, fs.Verify())
	for i := 0; i < writers; i++ {
		got := make([]byte, len(contents[i]))
		_, err := fs.ReadAt(fmt.Sprintf("w%d", i), got, 0)
		require.NoError(t, err)
		require.Equal(t, contents[i], got)
	}
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}
