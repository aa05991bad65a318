package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/qualscan/internal/observer"
	"github.com/hochfrequenz/qualscan/internal/review"
)

var watchQuiet time.Duration

func init() {
	watchCmd := &cobra.Command{
		Use:   "watch RUN_DIR",
		Short: "Follow a run directory while its reviewers write",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().DurationVar(&watchQuiet, "quiet-after", 2*time.Minute, "warn when a running batch log stops changing for this long")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	runDir := args[0]

	names := map[int]string{}
	if m, err := review.ReadManifest(runDir); err == nil {
		for i, n := range m.Batches {
			if i < len(m.Names) {
				names[n] = m.Names[i]
			}
		}
	}

	obs := observer.New(names)
	obs.Update(observer.Scan(runDir))
	for _, line := range obs.Lines(time.Now()) {
		fmt.Println(line)
	}

	rw, err := observer.NewRunWatcher(runDir, func(changed []observer.Artifact) {
		obs.Update(changed)
		now := time.Now()
		seen := map[int]bool{}
		for _, a := range changed {
			if !seen[a.Batch] {
				seen[a.Batch] = true
				fmt.Println(obs.Line(a.Batch, now))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", runDir, err)
	}
	rw.SetVerbose(verbose)

	ctx, stop := signalContext()
	defer stop()
	rw.Start(ctx)
	defer rw.Stop()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, n := range obs.Quiet(watchQuiet, now) {
				fmt.Printf("Warning: batch %d log unchanged for over %s\n", n, watchQuiet)
			}
		}
	}
}
