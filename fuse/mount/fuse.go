//go:build !nofuse && (linux || darwin || freebsd)

package mount

import (
	"fmt"
	"sync"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/jbenet/goprocess"
)

const fsName = "poolfs"

// mount implements the Mount interface on a bazil fuse connection.
type mount struct {
	mpoint   string
	filesys  fs.FS
	fuseConn *fuse.Conn

	active     bool
	activeLock sync.RWMutex

	proc goprocess.Process
}

// NewMount mounts a fuse fs.FS at a given location, and returns a Mount
// instance. The mount is torn down exactly once, by Unmount or by closing
// its process.
func NewMount(fsys fs.FS, mountpoint string, allowOther bool) (Mount, error) {
	var conn *fuse.Conn
	var err error

	mountOpts := []fuse.MountOption{
		fuse.FSName(fsName),
		fuse.Subtype(fsName),
	}
	if allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	conn, err = fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return nil, err
	}

	m := &mount{
		mpoint:   mountpoint,
		fuseConn: conn,
		filesys:  fsys,
	}
	m.proc = goprocess.WithTeardown(m.unmount)

	serve := func() error { return fs.Serve(conn, fsys) }
	mountErr := func() error { return conn.MountError }
	if err := m.start(serve, conn.Ready, mountErr); err != nil {
		return nil, err
	}
	return m, nil
}

// start runs serve in the background and waits for the kernel to report
// the mount. On failure the process is closed so the connection and any
// half-made kernel mount are released.
func (m *mount) start(serve func() error, ready <-chan struct{}, mountErr func() error) error {
	if err := m.mount(serve, ready, mountErr); err != nil {
		// Unmount refuses a mount that never became active.
		if cerr := m.proc.Close(); cerr != nil {
			log.Warnf("cleanup of failed mount %s: %s", m.MountPoint(), cerr)
		}
		return err
	}
	return nil
}

func (m *mount) mount(serve func() error, ready <-chan struct{}, mountErr func() error) error {
	log.Infof("Mounting %s", m.MountPoint())

	errs := make(chan error, 1)
	go func() {
		// serve blocks until the filesystem is unmounted.
		err := serve()
		log.Debugf("%s is not mounted anymore: %v", m.MountPoint(), err)
		m.setActive(false)
		if err != nil {
			errs <- err
		}
	}()

	// wait for the mount process to be done, or timed out.
	select {
	case <-time.After(MountTimeout):
		return fmt.Errorf("mounting %s timed out", m.MountPoint())
	case err := <-errs:
		return err
	case <-ready:
	}

	// check if the mount process has an error to report
	if err := mountErr(); err != nil {
		return err
	}

	m.setActive(true)

	log.Infof("Mounted %s", m.MountPoint())
	return nil
}

// unmount is called exactly once to unmount this service.
// note that closing the connection will not always unmount
// properly. If that happens, we bring out the big guns
// (mount.ForceUnmountManyTimes, exec unmount).
func (m *mount) unmount() error {
	log.Infof("Unmounting %s", m.MountPoint())

	// try unmounting with fuse lib
	err := fuse.Unmount(m.MountPoint())
	if err == nil {
		m.setActive(false)
		return nil
	}
	log.Warnf("fuse unmount err: %s", err)

	// try closing the fuseConn
	err = m.fuseConn.Close()
	if err == nil {
		m.setActive(false)
		return nil
	}
	log.Warnf("fuse conn error: %s", err)

	// try mount.ForceUnmountManyTimes
	if err := ForceUnmountManyTimes(m, 10); err != nil {
		return err
	}

	log.Infof("Seemingly unmounted %s", m.MountPoint())
	m.setActive(false)
	return nil
}

func (m *mount) Process() goprocess.Process {
	return m.proc
}

func (m *mount) MountPoint() string {
	return m.mpoint
}

func (m *mount) Unmount() error {
	if !m.IsActive() {
		return ErrNotMounted
	}

	// call Process Close(), which calls unmount() exactly once.
	return m.proc.Close()
}

func (m *mount) IsActive() bool {
	m.activeLock.RLock()
	defer m.activeLock.RUnlock()

	return m.active
}

func (m *mount) setActive(a bool) {
	m.activeLock.Lock()
	m.active = a
	m.activeLock.Unlock()
}
