package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	version "github.com/poolfs/poolfs"
	"github.com/poolfs/poolfs/config"
	"github.com/poolfs/poolfs/config/serialize"
	mount "github.com/poolfs/poolfs/fuse/mount"
	"github.com/poolfs/poolfs/fuse/node"
	"github.com/poolfs/poolfs/memfs"
	"github.com/poolfs/poolfs/metrics"
	"github.com/poolfs/poolfs/pool"
	"github.com/poolfs/poolfs/tracing"
)

const (
	allowOtherOption  = "allow-other"
	metricsOption     = "metrics"
	metricsAddrOption = "metrics-addr"
	logLevelOption    = "log-level"

	envPrefix       = "POOLFS"
	shutdownTimeout = 5 * time.Second
)

// flagKeys binds mount flags to config keys.
var flagKeys = map[string]string{
	allowOtherOption:  "mounts.fuseallowother",
	metricsOption:     "metrics.enabled",
	metricsAddrOption: "metrics.listenaddress",
	logLevelOption:    "log.level",
}

func newMountCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount [mountpoint]",
		Short: "Mount the filesystem and serve it until interrupted",
		Long: `Mounts an empty poolfs filesystem at the given mountpoint, or at
Mounts.MemFS from the configuration, and serves it until SIGINT or SIGTERM.
All files are lost on exit.

Settings are read from the configuration file, then from POOLFS_*
environment variables (for example POOLFS_METRICS_LISTENADDRESS), then
from flags.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, cfg)
		},
	}

	cmd.Flags().Bool(allowOtherOption, false, "let other users access the mount")
	cmd.Flags().Bool(metricsOption, true, "serve prometheus metrics")
	cmd.Flags().String(metricsAddrOption, config.DefaultMetricsAddress, "listen address of the metrics endpoint")
	cmd.Flags().String(logLevelOption, config.DefaultLogLevel, "log level for every subsystem (debug, info, warn, error)")
	return cmd
}

// loadConfig reads the config file and overlays environment, flags and
// the mountpoint argument.
func loadConfig(cmd *cobra.Command, g *globals, args []string) (*config.Config, error) {
	filename, err := g.configFilename()
	if err != nil {
		return nil, err
	}
	cfg, err := serialize.Load(filename)
	if err != nil {
		return nil, err
	}
	if err := overlay(cmd, cfg); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Mounts.MemFS = args[0]
	}
	if cfg.Mounts.MemFS == "" {
		return nil, errors.New("no mountpoint given and Mounts.MemFS is not set")
	}
	return cfg, nil
}

func overlay(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mounts.memfs", cfg.Mounts.MemFS)
	v.SetDefault("mounts.fuseallowother", cfg.Mounts.FuseAllowOther)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listenaddress", cfg.Metrics.ListenAddress)
	v.SetDefault("log.level", cfg.Log.Level)

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

func setLogLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}

func newSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return "#UUID-ERROR#"
}

// serve mounts a fresh filesystem and blocks until ctx is done.
func serve(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (err error) {
	if err := setLogLevel(cfg.Log.Level); err != nil {
		return err
	}
	session := newSessionID()
	logger := log.With("session", session)

	tp, err := tracing.NewTracerProvider(ctx, tracing.Session{
		ID:         session,
		MountPoint: cfg.Mounts.MemFS,
		Blocks:     pool.DefaultBlocks,
	})
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if terr := tp.Shutdown(shutdownCtx); terr != nil {
			err = multierror.Append(err, fmt.Errorf("tracer shutdown: %w", terr))
		}
	}()

	fs, err := memfs.New()
	if err != nil {
		return err
	}
	n := &node.Node{FS: fs}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		l, err := net.Listen("tcp", cfg.Metrics.ListenAddress)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		metrics.Register(fs)
		metrics.SetInfo(version.CurrentVersionNumber, version.CurrentCommit, session)
		srv = metrics.NewServer(cfg.Metrics.ListenAddress)
		go func() {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("metrics server stopped", "err", err)
			}
		}()
		logger.Infow("serving metrics", "addr", l.Addr().String(), "path", metrics.Path)
	}

	// the mount is released explicitly below so its error can be reported
	mountCtx, cancelMount := context.WithCancel(context.Background())
	defer cancelMount()
	if err := node.Mount(mountCtx, n, cfg.Mounts.MemFS, cfg.Mounts.FuseAllowOther); err != nil {
		if srv != nil {
			_ = srv.Close()
		}
		return err
	}
	logger.Infow("mounted", "mountpoint", cfg.Mounts.MemFS, "blocks", fs.Statfs().Blocks)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "poolfs mounted at %s\n", cfg.Mounts.MemFS)
	notifyReady()

	<-ctx.Done()
	notifyStopping()
	fmt.Fprintln(out, "Received interrupt signal, shutting down...")

	var errs error
	if uerr := n.Mount.Unmount(); uerr != nil && !errors.Is(uerr, mount.ErrNotMounted) {
		errs = multierror.Append(errs, fmt.Errorf("unmount %s: %w", cfg.Mounts.MemFS, uerr))
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			errs = multierror.Append(errs, fmt.Errorf("metrics server shutdown: %w", serr))
		}
	}
	return errs
}
