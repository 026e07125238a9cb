package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "testermanctl",
	Short: "testermanctl controls a Testerman server over its Ws façade",
	Long: `testermanctl is a thin command-line client over the Testerman
Server Ws façade: submit ATS/campaign jobs, inspect job state and logs,
and send job-control signals (pause, resume, cancel, kill, action-performed).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("TESTERMAN_SERVER", "http://localhost:8080"), "base URL of the testerman-server Ws façade")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(detailsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(rescheduleCmd)
	rootCmd.AddCommand(purgeCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *apiClient { return newAPIClient(serverAddr) }

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
