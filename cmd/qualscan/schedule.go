package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/qualscan/internal/config"
	"github.com/hochfrequenz/qualscan/internal/packet"
	"github.com/hochfrequenz/qualscan/internal/review"
	"github.com/hochfrequenz/qualscan/internal/schedule"
)

var scheduleList bool

func init() {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured review schedules until interrupted",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "list schedules and their next run, then exit")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no [[schedule]] entries configured")
	}

	sched, err := schedule.NewScheduler(cfg.Schedules, time.Now())
	if err != nil {
		return err
	}

	if scheduleList {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCRON\tPACKET\tNEXT RUN")
		for _, e := range cfg.Schedules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Cron, e.Packet, sched.NextRun(e.Name).Format(time.RFC3339))
		}
		w.Flush()
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	for _, name := range sched.Names() {
		log.Printf("[schedule] %s next at %s", name, sched.NextRun(name).Format(time.RFC3339))
	}
	sched.Start(ctx, time.Minute, scheduledRun(cfg))
	return nil
}

// scheduledRun runs one schedule entry as a normal review run
func scheduledRun(cfg *config.Config) schedule.RunFunc {
	return func(ctx context.Context, e config.ScheduleConfig) error {
		p, err := packet.Load(config.ExpandPath(e.Packet))
		if err != nil {
			return err
		}

		runner, closeLedger := newRunner(cfg, e.NotifyOnComplete)
		defer closeLedger()

		log.Printf("[schedule] %s: starting review of %s", e.Name, p.Path)
		out, err := runner.Run(ctx, review.Request{Packet: p, Selection: e.OnlyBatches, Progress: printProgress})
		if err != nil {
			return err
		}
		log.Printf("[schedule] %s: run %s %s (%d failed), results in %s",
			e.Name, out.RunID, out.Status, len(out.Failed), out.Layout.Dir)
		if out.Report != nil {
			out.Report.Write(os.Stderr)
		}
		return nil
	}
}
