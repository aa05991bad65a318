package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/qualscan/internal/packet"
)

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:   "qualscan",
		Short: "qualscan - parallel code quality review runner",
		Long: `qualscan runs the investigation batches of a review packet through an
external reviewer CLI, supervises each process, retries transient failures,
and merges the per-batch assessments into one score per dimension.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// exitError carries a specific process exit code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, packet.ErrInvalidSelection) {
		return 2
	}
	return 1
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
