package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/scheduler"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var logLines int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the schedule, sources and recent log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				status := sched.Status()
				out := cmd.OutOrStdout()

				rows := [][]string{
					{"Active", yesNo(status.Active)},
					{"Next run", formatTime(status.NextRun)},
					{"Interval", fmt.Sprintf("%dh", status.Interval)},
					{"Running", yesNo(status.Running)},
					{"Sources", strconv.Itoa(len(status.Sources))},
				}
				if status.LastRun != nil {
					rows = append(rows, []string{"Last run", describeRun(status.LastRun)})
				}
				if status.PersistError != nil {
					rows = append(rows, []string{"Persist error", *status.PersistError})
				}
				fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))

				if len(status.Sources) > 0 {
					fmt.Fprint(out, renderSources(status.Sources))
				}

				logs := status.Logs
				if logLines >= 0 && len(logs) > logLines {
					logs = logs[len(logs)-logLines:]
				}
				if len(logs) > 0 {
					logRows := make([][]string, 0, len(logs))
					for _, entry := range logs {
						ts := entry.Timestamp
						logRows = append(logRows, []string{formatTime(&ts), string(entry.Type), entry.Message})
					}
					fmt.Fprint(out, renderTable([]string{"Time", "Type", "Message"}, logRows, nil))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&logLines, "logs", "n", 10, "Number of recent log entries to show (-1 for all)")
	return cmd
}

func newToggleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "toggle on|off",
		Short:     "Activate or deactivate the recurring schedule",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			active := args[0] == "on"
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				state, err := sched.ToggleActive(cmd.Context(), active)
				if err != nil {
					return err
				}
				if state.Active {
					fmt.Fprintf(cmd.OutOrStdout(), "Schedule active, next run at %s\n", formatTime(state.NextRun))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Schedule inactive")
				}
				return nil
			})
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every active source now and wait for the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				summary, err := sched.RunNow(cmd.Context())
				if summary != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Run finished: %s\n", describeRun(summary))
				}
				return err
			})
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the schedule if it is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				summary, err := sched.CheckAndRun(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if summary == nil {
					status := sched.Status()
					if !status.Active {
						fmt.Fprintln(out, "Schedule inactive, nothing to do")
					} else {
						fmt.Fprintf(out, "Not due until %s\n", formatTime(status.NextRun))
					}
					return nil
				}
				fmt.Fprintf(out, "Run finished: %s\n", describeRun(summary))
				return nil
			})
		},
	}
}

func describeRun(s *models.RunSummary) string {
	return fmt.Sprintf("%d new, %d duplicate, %d failed across %d sources (%s)",
		s.Downloaded, s.Duplicates, s.Failed, s.SourcesProcessed, s.Trigger)
}
