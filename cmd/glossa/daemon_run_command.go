package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glossa/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	return cmd
}

func newRunOnceCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Claim and process at most one queued run, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			processed, err := daemonrun.RunOnce(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
			if err != nil {
				return err
			}
			if processed {
				fmt.Fprintln(cmd.OutOrStdout(), "Processed one run")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	return cmd
}
