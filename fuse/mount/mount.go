// package mount provides a simple abstraction around a mount point
package mount

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jbenet/goprocess"
)

var log = logging.Logger("fuse/mount")

// MountTimeout bounds the wait for the kernel to report the mount ready.
var MountTimeout = time.Second * 5

// ErrNotMounted is returned by operations on a mount that is gone.
var ErrNotMounted = errors.New("not mounted")

// Mount represents a filesystem mount.
type Mount interface {
	// MountPoint is the path at which this mount is mounted
	MountPoint() string

	// Unmounts the mount
	Unmount() error

	// Checks if the mount is still active.
	IsActive() bool

	// Process for the mount
	Process() goprocess.Process
}

// ForceUnmount attempts to forcibly unmount a given mount.
// It does so by calling diskutil or fusermount directly.
func ForceUnmount(m Mount) error {
	point := m.MountPoint()
	log.Warnf("Force-Unmounting %s...", point)

	cmd, err := UnmountCmd(point)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)

		// try vanilla unmount first.
		if err := exec.Command("umount", point).Run(); err == nil {
			return
		}

		// retry to unmount with the fallback cmd
		errc <- cmd.Run()
	}()

	select {
	case <-time.After(7 * time.Second):
		return fmt.Errorf("umount timeout")
	case err := <-errc:
		return err
	}
}

// UnmountCmd creates an exec.Cmd that is GOOS-specific
// for unmount a FUSE mount.
func UnmountCmd(point string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("diskutil", "umount", "force", point), nil
	case "linux":
		return exec.Command("fusermount", "-u", point), nil
	default:
		return nil, fmt.Errorf("unmount: unimplemented")
	}
}

// ForceUnmountManyTimes attempts to forcibly unmount a given mount,
// many times. It does so by calling diskutil or fusermount directly.
// Attempts a given number of times.
func ForceUnmountManyTimes(m Mount, attempts int) error {
	return forceUnmountRetry(m, attempts, ForceUnmount)
}

func forceUnmountRetry(m Mount, attempts int, unmount func(Mount) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	var tries int
	err := backoff.Retry(func() error {
		tries++
		return unmount(m)
	}, backoff.WithMaxRetries(b, uint64(attempts-1)))
	if err != nil {
		return fmt.Errorf("unmount %s failed after %d attempts: %w", m.MountPoint(), tries, err)
	}
	return nil
}
