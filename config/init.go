package config

const (
	DefaultMountPoint     = "/mnt/poolfs"
	DefaultMetricsAddress = "127.0.0.1:5009"
	DefaultLogLevel       = "error"
)

// Init returns the default configuration written by `poolfs init`.
func Init() *Config {
	return &Config{
		Mounts: Mounts{
			MemFS:          DefaultMountPoint,
			FuseAllowOther: false,
		},
		Metrics: Metrics{
			Enabled:       true,
			ListenAddress: DefaultMetricsAddress,
		},
		Log: Log{
			Level: DefaultLogLevel,
		},
	}
}
