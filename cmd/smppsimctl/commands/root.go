package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client talks to the smppsim admin API, initialized in PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands.
	outputFormat string

	// serverAddr is the daemon admin API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for smppsimctl.
var rootCmd = &cobra.Command{
	Use:   "smppsimctl",
	Short: "CLI client for the smppsim daemon",
	Long:  "smppsimctl communicates with the smppsim daemon's admin HTTP API to inspect sessions and messages and to inject mobile-originated traffic.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAPIClient(serverAddr)

		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"smppsim admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json, yaml")

	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(injectCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
