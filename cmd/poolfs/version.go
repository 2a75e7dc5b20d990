package main

import (
	"fmt"

	"github.com/spf13/cobra"

	version "github.com/poolfs/poolfs"
)

func newVersionCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.GetVersionInfo()
			out := cmd.OutOrStdout()
			if !all {
				fmt.Fprintf(out, "poolfs version %s\n", info.Version)
				return
			}
			fmt.Fprintf(out, "poolfs version: %s\n", info.Version)
			fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			fmt.Fprintf(out, "Block size: %s\n", info.BlockSize)
			fmt.Fprintf(out, "System version: %s\n", info.System)
			fmt.Fprintf(out, "Golang version: %s\n", info.Golang)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show all version information")
	return cmd
}
