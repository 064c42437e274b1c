// Package democli implements the inferrt demo command-line interface
// using Cobra, grounded on Tutu-Engine-tutuengine/internal/cli/root.go.
// It exists to exercise the driver/registry/config/metrics stack end to
// end against the mock backend; it is explicitly not part of the
// module's core surface (spec.md Non-goals: "CLI wrappers").
package democli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "inferrt-demo",
	Short: "inferrt-demo — exercise the inference pipeline runtime",
	Long: `inferrt-demo is a small command-line harness around the inference
pipeline runtime: it loads a config, registers a mock model, and runs a
handful of synchronous and asynchronous inferences against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
