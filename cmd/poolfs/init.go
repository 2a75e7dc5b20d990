package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/poolfs/poolfs/config"
	"github.com/poolfs/poolfs/config/serialize"
)

func newInitCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Writes the default configuration file to $POOLFS_PATH/config
(~/.poolfs/config by default) and prints it. An existing file is kept
unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename, err := g.configFilename()
			if err != nil {
				return err
			}
			cfg, err := serialize.Init(filename, force)
			if err != nil {
				return err
			}
			out, err := config.HumanOutput(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "initialized poolfs configuration at %s\n", filename)
			fmt.Fprintf(w, "%s\n", out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration")
	return cmd
}
