package config

// Mounts stores the mount point of the filesystem.
type Mounts struct {
	MemFS string

	// FuseAllowOther lets users other than the one running the daemon
	// access the mount. Requires user_allow_other in /etc/fuse.conf.
	FuseAllowOther bool
}
