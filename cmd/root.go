package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the shopbridge application.
var rootCmd = &cobra.Command{
	Use:   "shopbridge",
	Short: "Bridge AI agents to commerce tool providers",
	Long: `shopbridge exposes a shop's storefront catalog, customer-account and
administrative tools to AI agents over a dual-transport JSON-RPC protocol,
handling credential resolution and customer login (OAuth + PKCE) along the way.`,
	SilenceUsage: true,
}

// SetVersion injects the build version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "shopbridge version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
