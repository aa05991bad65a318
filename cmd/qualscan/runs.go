package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/qualscan/internal/config"
	"github.com/hochfrequenz/qualscan/internal/runstore"
)

var runsLimit int

func init() {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded review runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE:  runRunsList,
	}
	listCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
	runsCmd.AddCommand(listCmd)

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one run with its batches and scores",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}
	runsCmd.AddCommand(showCmd)

	rootCmd.AddCommand(runsCmd)
}

func openLedger() (*runstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := runstore.New(config.ExpandPath(cfg.General.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tBATCHES\tFAILED\tFINDINGS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Status, r.BatchesSelected, r.BatchesFailed, r.Findings, humanize.Time(r.StartedAt))
	}
	w.Flush()

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(args[0])
	if errors.Is(err, runstore.ErrNotFound) {
		return fmt.Errorf("run %s not found", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Run:       %s\n", run.ID)
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Packet:    %s\n", run.PacketPath)
	fmt.Printf("Directory: %s\n", run.RunDir)
	if run.Selection != "" {
		fmt.Printf("Selection: %s\n", run.Selection)
	}
	fmt.Printf("Started:   %s (%s)\n", run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Printf("Duration:  %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BATCH\tNAME\tSTATUS\tEXIT\tELAPSED\tCATEGORY")
	for _, b := range run.Batches {
		category := b.Category
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			b.Number, b.Name, b.Status, b.ExitCode, b.Elapsed.Round(time.Second), category)
	}
	w.Flush()

	if len(run.Scores) == 0 {
		return nil
	}
	scores := append([]runstore.ScoreRecord(nil), run.Scores...)
	sort.Slice(scores, func(i, j int) bool { return scores[i].Dimension < scores[j].Dimension })

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIMENSION\tSCORE\tMEAN\tFLOOR\tPRESSURE\tFINDINGS")
	for _, s := range scores {
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%.2f\t%d\n",
			s.Dimension, s.Score, s.WeightedMean, s.Floor, s.Pressure, s.FindingCount)
	}
	w.Flush()

	return nil
}
