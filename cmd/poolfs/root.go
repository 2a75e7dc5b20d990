package main

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	version "github.com/poolfs/poolfs"
	"github.com/poolfs/poolfs/config"
)

// log is the command logger
var log = logging.Logger("poolfs")

const (
	configDirOption  = "config-dir"
	configFileOption = "config-file"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configDir  string
	configFile string
}

// configFilename resolves the config file from the persistent flags.
func (g *globals) configFilename() (string, error) {
	return config.Filename(g.configDir, g.configFile)
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "poolfs",
		Short: "In-memory FUSE filesystem backed by a fixed block pool",
		Long: `poolfs mounts a flat, volatile filesystem whose file contents live in a
pool of 65536 blocks of 32 KiB each. Nothing is written to disk: unmounting
discards every file.

Commands:
  init       Write the default configuration
  mount      Mount the filesystem and serve it until interrupted
  version    Show version information`,
		Version:       version.CurrentVersionNumber,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configDir, configDirOption, "c", "", "path to the configuration root (default $POOLFS_PATH or ~/.poolfs)")
	rootCmd.PersistentFlags().StringVar(&g.configFile, configFileOption, "", "path to the configuration file")

	rootCmd.AddCommand(
		newInitCmd(g),
		newMountCmd(g),
		newVersionCmd(),
	)
	return rootCmd
}
