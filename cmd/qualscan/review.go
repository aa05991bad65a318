package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/qualscan/internal/executor"
	"github.com/hochfrequenz/qualscan/internal/packet"
	"github.com/hochfrequenz/qualscan/internal/review"
	"github.com/hochfrequenz/qualscan/internal/scheduler"
	"github.com/hochfrequenz/qualscan/tui"
)

var (
	packetPath   string
	onlyBatches  string
	useTUI       bool
	allowPartial bool
	workers      int
	sequential   bool
)

func init() {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Run and merge batch reviews",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the batches of a review packet",
		RunE:  runReview,
	}
	runCmd.Flags().StringVar(&packetPath, "packet", "", "review packet (YAML or JSON)")
	runCmd.Flags().StringVar(&onlyBatches, "only-batches", "", "1-based batches to run, e.g. 1,3,5-7")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live dashboard")
	runCmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "exit 0 even when some batches failed")
	runCmd.Flags().IntVar(&workers, "workers", 0, "parallel reviewer processes (default from config)")
	runCmd.Flags().BoolVar(&sequential, "sequential", false, "run batches one at a time")
	runCmd.MarkFlagRequired("packet")
	reviewCmd.AddCommand(runCmd)

	mergeCmd := &cobra.Command{
		Use:   "merge RUN_DIR",
		Short: "Re-extract and re-merge an existing run directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runMerge,
	}
	mergeCmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "exit 0 even when some batches failed")
	reviewCmd.AddCommand(mergeCmd)

	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("only-batches") && strings.TrimSpace(onlyBatches) == "" {
		return fmt.Errorf("%w: --only-batches is empty", packet.ErrInvalidSelection)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := packet.Load(packetPath)
	if err != nil {
		return err
	}

	runner, closeLedger := newRunner(cfg, true)
	defer closeLedger()

	ctx, stop := signalContext()
	defer stop()

	req := review.Request{
		Packet:     p,
		Selection:  onlyBatches,
		Workers:    workers,
		Sequential: sequential,
	}

	if useTUI && !isatty.IsTerminal(os.Stdout.Fd()) {
		log.Printf("Warning: stdout is not a terminal, showing plain progress instead of --tui")
		useTUI = false
	}

	var out *review.Outcome
	if useTUI {
		out, err = runWithTUI(ctx, runner, req, cfg.Review.MaxParallelBatches)
	} else {
		req.Progress = printProgress
		out, err = runner.Run(ctx, req)
	}
	if err != nil {
		return err
	}

	printOutcome(out)
	if ctx.Err() != nil {
		return &exitError{code: executor.ExitCancelled, err: fmt.Errorf("run %s interrupted", out.RunID)}
	}
	return failureError(out)
}

// runWithTUI drives the dashboard from scheduler events. Leaving the
// dashboard early keeps the run going with plain progress lines.
func runWithTUI(ctx context.Context, runner *review.Runner, req review.Request, defaultWorkers int) (*review.Outcome, error) {
	selected, err := req.Packet.Select(req.Selection)
	if err != nil {
		return nil, err
	}

	events := make(chan scheduler.Event, 64)
	req.Progress = func(ev scheduler.Event) { events <- ev }

	type result struct {
		out *review.Outcome
		err error
	}
	done := make(chan result, 1)

	// Log lines would tear the alternate screen; hold them until it closes.
	var held bytes.Buffer
	log.SetOutput(&held)

	go func() {
		out, err := runner.Run(ctx, req)
		close(events)
		done <- result{out, err}
	}()

	shown := req.Workers
	if shown <= 0 {
		shown = defaultWorkers
	}
	if req.Sequential {
		shown = 1
	}

	model := tui.NewModel(tui.ModelConfig{
		Title:   filepath.Base(req.Packet.Path),
		Workers: shown,
		Batches: selected,
		Events:  events,
	})
	final, tuiErr := tea.NewProgram(model, tea.WithAltScreen()).Run()

	log.SetOutput(os.Stderr)
	io.Copy(os.Stderr, &held)

	if m, ok := final.(tui.Model); tuiErr != nil || (ok && m.Detached()) {
		fmt.Fprintln(os.Stderr, "Detached from dashboard; the run continues.")
	}
	for ev := range events {
		printProgress(ev)
	}

	res := <-done
	return res.out, res.err
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := review.NewRunner(cfg, nil).Merge(args[0])
	if err != nil {
		return err
	}
	printOutcome(out)
	return failureError(out)
}

func failureError(out *review.Outcome) error {
	if len(out.Failed) == 0 || allowPartial {
		return nil
	}
	return fmt.Errorf("%d of %d batches failed", len(out.Failed), len(out.Selected))
}

// printOutcome writes the score table to stdout and the failure report,
// if any, to stderr.
func printOutcome(out *review.Outcome) {
	fmt.Printf("Run %s: %s (%d/%d batches merged)\n",
		out.RunID, out.Status, len(out.Merged.MergedBatches), len(out.Selected))
	fmt.Printf("Run directory: %s\n", out.Layout.Dir)

	if len(out.Merged.Assessments) > 0 {
		dims := make([]string, 0, len(out.Merged.Assessments))
		for dim := range out.Merged.Assessments {
			dims = append(dims, dim)
		}
		sort.Strings(dims)

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DIMENSION\tSCORE\tMEAN\tFLOOR\tFINDINGS")
		for _, dim := range dims {
			sb := out.Merged.Breakdown[dim]
			fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%d\n", dim, sb.Final, sb.WeightedMean, sb.Floor, sb.FindingCount)
		}
		w.Flush()
	}
	fmt.Printf("\n%d findings, merged results in %s\n", len(out.Merged.Findings), out.Layout.MergedPath())

	for _, pf := range out.ParseFailures {
		fmt.Fprintf(os.Stderr, "batch %d: %s\n", pf.BatchNumber(), pf.Error())
	}
	if out.Report != nil {
		fmt.Fprintln(os.Stderr)
		out.Report.Write(os.Stderr)
	}
}
