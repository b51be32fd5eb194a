package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the chatctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Operator tooling for the gobychat server",
		Long: `chatctl inspects configuration and mints session tokens for a gobychat
deployment. It reads the same environment (and .env file) as the server.`,
		SilenceUsage: true,
	}
	root.AddCommand(newVersionCmd(), newTokenCmd(), newCheckConfigCmd())
	return root
}

// Execute executes the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
