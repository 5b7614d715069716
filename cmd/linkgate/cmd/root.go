package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "linkgate",
	Short: "linkgate issues short-lived keys gated behind a redirect step",
	Long: `linkgate is a credential lifecycle service: clients begin a session,
verify it by following an external redirect, receive a short-lived key,
and present that key on every subsequent request until it expires.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
