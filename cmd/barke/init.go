package main

import (
	"fmt"

	"github.com/barke-deploy/barke/internal/config"
	"github.com/barke-deploy/barke/internal/utils"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter deploy config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			configPath, err := utils.ResolvePath(configPath)
			if err != nil {
				return err
			}

			if utils.FileExists(configPath) && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s\n", cyan(configPath))
				fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite it.")
				return nil
			}

			if err := config.Example().Save(configPath); err != nil {
				return fmt.Errorf("config write '%s': %w", configPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written: %s\n", green(configPath))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
