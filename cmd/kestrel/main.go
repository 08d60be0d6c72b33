package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelmon/kestrel/internal/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "kestrel",
	Short:         "Recurring database monitoring agent",
	Long:          "kestrel resolves its monitor identity, pulls credentials from the monitor's secret store, runs the due checks from the content directory, and ships results to the configured sinks. Each invocation is one cycle.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(monitorCmd, onboardCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
