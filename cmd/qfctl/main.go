package main

import (
	"fmt"
	"os"

	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qfctl",
	Short: "qfgo - a priority-partitioned event dispatch framework",
	Long: `qfctl drives qfgo's Active Object / dispatcher / ISR relay stack
for local experimentation: run a small simulated system of Active
Objects under a chosen strategy, watch its metrics, and exercise the
ISR relay with a synthetic burst.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"qfctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(metricsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	qlog.Init(qlog.Config{
		Level:      qlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
