package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/kbukum/switchyard/plugin"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugin bundles",
	}
	cmd.AddCommand(newPluginsValidateCmd(), newPluginsDigestCmd())
	return cmd
}

func newPluginsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate DIR",
		Short: "Validate every plugin descriptor under DIR",
		Long: `Validate every plugin descriptor under DIR.

Each sub-directory holding a plugin.yaml is parsed and validated, every
bundle path must exist, and manifest digests are checked against the files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePlugins(cmd.OutOrStdout(), args[0])
		},
	}
}

func validatePlugins(w io.Writer, dir string) error {
	descs, errs := plugin.Discover(dir)
	for _, err := range multierr.Errors(errs) {
		fmt.Fprintf(w, "FAIL  %v\n", err)
	}
	for _, d := range descs {
		if err := checkBundle(d); err != nil {
			fmt.Fprintf(w, "FAIL  %s %s: %v\n", d.ID, d.Version, err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d.ID, err))
			continue
		}
		fmt.Fprintf(w, "ok    %s %s (%s, %d files)\n", d.ID, d.Version, d.Runtime(), len(d.Paths))
	}
	if n := len(multierr.Errors(errs)); n > 0 {
		return fmt.Errorf("%d plugin(s) failed validation", n)
	}
	return nil
}

// checkBundle verifies the bundle files of d and their manifest digests.
func checkBundle(d plugin.Descriptor) error {
	var errs error
	for _, path := range d.ResolvedPaths() {
		got, err := plugin.DigestFile(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if want, ok := d.Digest(filepath.Base(path)); ok && want != got {
			errs = multierr.Append(errs, fmt.Errorf("digest mismatch for %s", filepath.Base(path)))
		}
	}
	return errs
}

func newPluginsDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest FILE...",
		Short: "Print manifest digest entries for bundle files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				sum, err := plugin.DigestFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s: %s\n", plugin.ManifestDigestPrefix, filepath.Base(path), sum)
			}
			return nil
		},
	}
}
