package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gorewood/coursemd/internal/output"
	"github.com/gorewood/coursemd/internal/schedule"
)

// newScheduleCmd creates the schedule command.
func newScheduleCmd() *cobra.Command {
	var onceFlag bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Store catalog archives on a schedule",
		Long: `Export the whole catalog once per configured format whenever
schedule.cron fires, and store each archive under <format>/<archive name>
in the configured storage. Access rules are not applied.

A failing format is reported to schedule.notify_on_error and the run
continues with the next one.

Examples:
  coursemd schedule          # run until interrupted
  coursemd schedule --once   # one run now, for an external cron`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchedule(cmd, onceFlag)
		},
	}

	cmd.Flags().BoolVar(&onceFlag, "once", false, "Run once now and exit")
	return cmd
}

func runSchedule(cmd *cobra.Command, once bool) error {
	printer := newPrinter(cmd)
	a, err := loadApp(cmd, printer)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return report(printer, output.NewUserErrorWithCause(err.Error(), err))
	}

	sc := a.cfg.Schedule
	var notifier schedule.Notifier
	if len(sc.NotifyOnError) > 0 {
		notifier = schedule.NewSMTPNotifier(sc.SMTP.Addr, sc.SMTP.From, sc.NotifyOnError, sc.SMTP.Username, sc.SMTP.Password)
	}
	s := schedule.New(schedule.Options{
		Exports:    a.exports,
		Registry:   a.registry,
		Store:      st,
		Plugins:    sc.Plugins,
		Overwrite:  a.cfg.Storage.Overwrite,
		LMSRootURL: a.cfg.LMSRootURL,
		TempDir:    a.cfg.TempDir,
		Notifier:   notifier,
		Logger:     a.logger,
	})

	if once {
		return printOutcomes(printer, s.RunOnce(cmd.Context()))
	}

	cronSchedule, err := sc.CronSchedule()
	if err != nil {
		return report(printer, output.NewUserErrorWithCause(err.Error(), err))
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	printer.Stderr("Exporting %v on %q\n", sc.Plugins, sc.Cron)
	if err := s.Run(ctx, cronSchedule); err != nil && !errors.Is(err, context.Canceled) {
		return report(printer, err)
	}
	return nil
}

// printOutcomes reports a single run. Any failed format makes the command
// fail after every outcome was printed.
func printOutcomes(printer *output.Printer, outcomes []schedule.Outcome) error {
	failed := 0
	rows := make([][]string, len(outcomes))
	list := make([]map[string]any, len(outcomes))
	for i, out := range outcomes {
		status := "stored"
		entry := map[string]any{
			"format":   out.Plugin,
			"key":      out.Key,
			"included": out.Included,
			"skipped":  out.Skipped,
		}
		if out.Err != nil {
			failed++
			status = out.Err.Error()
			entry["error"] = status
		}
		list[i] = entry
		rows[i] = []string{out.Plugin, out.Key, strconv.Itoa(out.Included), strconv.Itoa(out.Skipped), status}
	}

	if printer.IsJSON() {
		if err := printer.WriteJSON(map[string]any{"outcomes": list}); err != nil {
			return err
		}
	} else {
		printer.Table([]string{"FORMAT", "KEY", "INCLUDED", "SKIPPED", "STATUS"}, rows)
	}
	if failed > 0 {
		return output.NewSystemError(strconv.Itoa(failed) + " scheduled export(s) failed")
	}
	return nil
}
