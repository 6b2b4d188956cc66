package main

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/Canvas/internal/config"
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "canvas",
		Short:         "Collaborative canvas session server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolP("version", "V", false, "display version and exit")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("canvas v{{.Version}}\n")

	return cmd
}
