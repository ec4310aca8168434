// Package cmd contains the CLI commands for alertsctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/logging"
)

var (
	// Used for flags
	verbose   bool
	output    string
	serverURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alertsctl",
	Short: "alertsctl - command line client for alertboard",
	Long: `alertsctl talks to an alertboard server: it follows the live alert
feed, posts alerts as the signed-in user and manages accounts.

Examples:
  # Sign in once; the token is kept in ~/.alertboard/credentials.yaml
  alertsctl login --server https://alerts.example.com --username ann

  # Follow the feed until Ctrl+C
  alertsctl watch

  # Post an alert
  alertsctl add "disk full on db-1"

  # Create a user directly in the server database
  alertsctl user create --db /data/alertboard.db --username bob --email bob@example.com`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		PrintError(err.Error(), false)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server URL (default from saved credentials)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// cliLogger logs to stderr at debug level with --verbose and stays silent
// otherwise.
func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, _, err := logging.New("debug", "console")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
