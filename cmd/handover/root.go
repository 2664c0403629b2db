package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(getenv func(string) string) *cobra.Command {
	ctx := newCommandContext(getenv)

	rootCmd := &cobra.Command{
		Use:           "handover",
		Short:         "Vehicle pre-delivery inspection client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.server, "server", "", "Server URL (default $HANDOVER_SERVER or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&ctx.drafts, "drafts", "", "Draft directory (default $HANDOVER_DRAFTS or ~/.handover/drafts)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log session activity to stderr")

	rootCmd.AddCommand(newOpenCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newMarkCommand(ctx))
	rootCmd.AddCommand(newAttachCommand(ctx))
	rootCmd.AddCommand(newSignCommand(ctx))
	rootCmd.AddCommand(newFlushCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
