package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "uniauth",
	Short: "Wallet and password authentication service",
	Long: `uniauth issues sign-in challenges to Ethereum wallets, verifies the
signed responses and binds wallets to accounts. Configuration is read from
an optional YAML file and UNIAUTH_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "uniauth %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
