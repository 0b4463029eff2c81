package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/switchyard/admin"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin API helpers",
	}
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			subject, _ := cmd.Flags().GetString("subject")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			tokens, err := admin.NewTokenService(cfg.Admin.Auth)
			if err != nil {
				return err
			}
			signed, err := tokens.Issue(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	token.Flags().String("subject", "operator", "token subject")
	cmd.AddCommand(token)
	return cmd
}
