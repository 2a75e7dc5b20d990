//go:build (linux || darwin || freebsd) && !nofuse

// Package memfs serves a poolfs engine over FUSE. Nodes carry no state of
// their own: every call resolves the file by name in the engine.
package memfs

import (
	"context"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	traceapi "go.opentelemetry.io/otel/trace"

	engine "github.com/poolfs/poolfs/memfs"
	"github.com/poolfs/poolfs/metrics"
	"github.com/poolfs/poolfs/pool"
	"github.com/poolfs/poolfs/tracing"
)

var log = logging.Logger("fuse/memfs")

// Permissions of files made by create and mknod.
const createMode = 0o644

// FileSystem is the FUSE view of an engine.
type FileSystem struct {
	fs *engine.FileSystem
}

// NewFileSystem wraps an engine.
func NewFileSystem(fsys *engine.FileSystem) *FileSystem {
	return &FileSystem{fs: fsys}
}

// Root returns the root directory.
func (f *FileSystem) Root() (fs.Node, error) {
	return &Dir{fsys: f}, nil
}

// Statfs reports pool usage. Free inodes equal free blocks since every file
// costs one metadata block.
func (f *FileSystem) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) (err error) {
	_, done := f.begin(ctx, "FS", "Statfs")
	defer done(&err)

	u := f.fs.Statfs()
	resp.Blocks = u.Blocks
	resp.Bfree = u.FreeBlocks
	resp.Bavail = u.FreeBlocks
	resp.Files = u.Files
	resp.Ffree = u.FreeBlocks
	resp.Bsize = u.BlockSize
	resp.Frsize = u.BlockSize
	resp.Namelen = engine.MaxNameLen
	return nil
}

// Destroy is called when the kernel releases the filesystem.
func (f *FileSystem) Destroy() {
	log.Info("filesystem released by the kernel")
}

// begin opens a span for one operation. The returned func ends it, records
// the metric and replaces *errp with the errno for the kernel.
func (f *FileSystem) begin(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracing.Span(ctx, "FUSE."+component, op, traceapi.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		defer span.End()

		result := metrics.ResultOK
		if *errp != nil {
			span.SetStatus(codes.Error, (*errp).Error())
			*errp, result = toErrno(*errp)
			log.Debugf("%s.%s: %s", component, op, result)
		}
		span.SetAttributes(attribute.String("result", result))
		metrics.Observe(op, result, time.Since(start))
	}
}

// Dir is the single directory of the filesystem.
type Dir struct {
	fsys *FileSystem
}

// Attr returns the attributes of the root.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) (err error) {
	_, done := d.fsys.begin(ctx, "Dir", "Attr")
	defer done(&err)

	fillAttr(a, d.fsys.fs.Root())
	return nil
}

// Lookup finds a file by name.
func (d *Dir) Lookup(ctx context.Context, name string) (_ fs.Node, err error) {
	switch name {
	case "mach_kernel", ".hidden", "._.":
		// Just quiet some log noise on OS X.
		return nil, fuse.ENOENT
	}

	_, done := d.fsys.begin(ctx, "Dir", "Lookup", attribute.String("name", name))
	defer done(&err)

	if _, err := d.fsys.fs.Stat(name); err != nil {
		return nil, err
	}
	return File{fsys: d.fsys, name: name}, nil
}

// ReadDirAll lists `.`, `..` and every file, newest first.
func (d *Dir) ReadDirAll(ctx context.Context) (_ []fuse.Dirent, err error) {
	_, done := d.fsys.begin(ctx, "Dir", "ReadDirAll")
	defer done(&err)

	root := d.fsys.fs.Root()
	entries := d.fsys.fs.List()
	out := make([]fuse.Dirent, 0, len(entries)+2)
	out = append(out,
		fuse.Dirent{Inode: root.Inode, Name: ".", Type: fuse.DT_Dir},
		fuse.Dirent{Inode: root.Inode, Name: "..", Type: fuse.DT_Dir},
	)
	for _, e := range entries {
		out = append(out, fuse.Dirent{Inode: e.Attr.Inode, Name: e.Name, Type: fuse.DT_File})
	}
	return out, nil
}

// Create makes an empty file owned by the caller and opens it.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (_ fs.Node, _ fs.Handle, err error) {
	_, done := d.fsys.begin(ctx, "Dir", "Create", attribute.String("name", req.Name))
	defer done(&err)

	if _, err := d.fsys.fs.Create(req.Name, createMode, req.Header.Uid, req.Header.Gid); err != nil {
		return nil, nil, err
	}
	f := File{fsys: d.fsys, name: req.Name}
	return f, f, nil
}

// Mknod makes an empty regular file. Device nodes, fifos and sockets are
// refused.
func (d *Dir) Mknod(ctx context.Context, req *fuse.MknodRequest) (_ fs.Node, err error) {
	_, done := d.fsys.begin(ctx, "Dir", "Mknod", attribute.String("name", req.Name))
	defer done(&err)

	if req.Mode&os.ModeType != 0 {
		return nil, fuse.EPERM
	}
	if _, err := d.fsys.fs.Create(req.Name, createMode, req.Header.Uid, req.Header.Gid); err != nil {
		return nil, err
	}
	return File{fsys: d.fsys, name: req.Name}, nil
}

// Remove unlinks a file and frees its blocks.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) (err error) {
	_, done := d.fsys.begin(ctx, "Dir", "Remove", attribute.String("name", req.Name))
	defer done(&err)

	if req.Dir {
		// there are no subdirectories
		if _, err := d.fsys.fs.Stat(req.Name); err != nil {
			return err
		}
		return fuse.Errno(syscall.ENOTDIR)
	}
	return d.fsys.fs.Remove(req.Name)
}

// File is a regular file, identified by name. It is both the node and the
// handle; values with the same name are the same node.
type File struct {
	fsys *FileSystem
	name string
}

// Attr returns the stored attributes of the file.
func (f File) Attr(ctx context.Context, a *fuse.Attr) (err error) {
	_, done := f.fsys.begin(ctx, "File", "Attr", attribute.String("name", f.name))
	defer done(&err)

	attr, err := f.fsys.fs.Stat(f.name)
	if err != nil {
		return err
	}
	fillAttr(a, attr)
	return nil
}

// Open checks that the file still exists.
func (f File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (_ fs.Handle, err error) {
	_, done := f.fsys.begin(ctx, "File", "Open", attribute.String("name", f.name))
	defer done(&err)

	if err := f.fsys.fs.Open(f.name); err != nil {
		return nil, err
	}
	return f, nil
}

// Read copies file data into the response. Reads at or past the end of
// the file return no data.
func (f File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) (err error) {
	_, done := f.fsys.begin(ctx, "File", "Read",
		attribute.String("name", f.name),
		attribute.Int64("offset", req.Offset),
		attribute.Int("size", req.Size),
	)
	defer done(&err)

	buf := resp.Data[:req.Size]
	n, err := f.fsys.fs.ReadAt(f.name, buf, req.Offset)
	if err != nil {
		return err
	}
	resp.Data = buf[:n]
	return nil
}

// Write stores the request data at its offset.
func (f File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) (err error) {
	_, done := f.fsys.begin(ctx, "File", "Write",
		attribute.String("name", f.name),
		attribute.Int64("offset", req.Offset),
		attribute.Int("size", len(req.Data)),
	)
	defer done(&err)

	n, err := f.fsys.fs.WriteAt(f.name, req.Data, req.Offset)
	if err != nil {
		return err
	}
	resp.Size = n
	return nil
}

// Setattr changes size, permissions, owner or timestamps.
func (f File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) (err error) {
	_, done := f.fsys.begin(ctx, "File", "Setattr", attribute.String("name", f.name))
	defer done(&err)

	attr, err := f.fsys.fs.SetAttr(f.name, f.setAttr(req))
	if err != nil {
		return err
	}
	fillAttr(&resp.Attr, attr)
	return nil
}

func (f File) setAttr(req *fuse.SetattrRequest) engine.SetAttr {
	var sa engine.SetAttr
	if req.Valid.Size() {
		sa.Size = &req.Size
	}
	if req.Valid.Mode() {
		sa.Mode = &req.Mode
	}
	if req.Valid.Uid() {
		sa.Uid = &req.Uid
	}
	if req.Valid.Gid() {
		sa.Gid = &req.Gid
	}
	switch {
	case req.Valid.AtimeNow():
		now := f.fsys.fs.Now()
		sa.Atime = &now
	case req.Valid.Atime():
		sa.Atime = &req.Atime
	}
	switch {
	case req.Valid.MtimeNow():
		now := f.fsys.fs.Now()
		sa.Mtime = &now
	case req.Valid.Mtime():
		sa.Mtime = &req.Mtime
	}
	return sa
}

// Fsync succeeds at once: there is nothing to flush.
func (f File) Fsync(ctx context.Context, req *fuse.FsyncRequest) (err error) {
	_, done := f.fsys.begin(ctx, "File", "Fsync", attribute.String("name", f.name))
	defer done(&err)

	return f.fsys.fs.Open(f.name)
}

// fillAttr converts engine attributes. Blocks are reported in 512-byte
// units as stat expects.
func fillAttr(a *fuse.Attr, attr engine.Attr) {
	a.Inode = attr.Inode
	a.Mode = attr.Mode
	a.Uid = attr.Uid
	a.Gid = attr.Gid
	a.Nlink = attr.Nlink
	a.Size = attr.Size
	a.Blocks = attr.Blocks * (pool.BlockSize / 512)
	a.BlockSize = pool.BlockSize
	a.Atime = attr.Atime
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime
}

var (
	_ fs.FS                 = (*FileSystem)(nil)
	_ fs.FSStatfser         = (*FileSystem)(nil)
	_ fs.FSDestroyer        = (*FileSystem)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeMknoder        = (*Dir)(nil)
	_ fs.NodeRemover        = (*Dir)(nil)
	_ fs.NodeOpener         = File{}
	_ fs.HandleReader       = File{}
	_ fs.HandleWriter       = File{}
	_ fs.NodeSetattrer      = File{}
	_ fs.NodeFsyncer        = File{}
)
