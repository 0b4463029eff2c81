package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/switchyard/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "switchyard",
		Short:        "Provider selection runtime and plugin host",
		Version:      version.GetShortVersion(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default: ./config.yml or ./config/config.yml)")

	root.AddCommand(
		newServeCmd(),
		newPluginsCmd(),
		newAdminCmd(),
		newVersionCmd(),
	)
	return root
}
