package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/scheduler"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List and manage polled sources",
	}

	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				sources := sched.Sources()
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sources configured")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSources(sources))
				return nil
			})
		},
	})

	sourcesCmd.AddCommand(&cobra.Command{
		Use:       "add <url> <channel|playlist>",
		Short:     "Add a channel or playlist",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.SourceTypeChannel), string(models.SourceTypePlaylist)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				src, err := sched.AddSource(cmd.Context(), args[0], models.SourceType(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added source %s\n", src.ID)
				return nil
			})
		},
	})

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
					src, err := sched.UpdateSource(cmd.Context(), args[0], scheduler.SourcePatch{Active: &active})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Source %s active: %s\n", src.ID, yesNo(src.Active))
					return nil
				})
			},
		}
	}
	sourcesCmd.AddCommand(setActive("enable", "Include a source in runs", true))
	sourcesCmd.AddCommand(setActive("disable", "Skip a source in runs", false))

	sourcesCmd.AddCommand(&cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a source",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withScheduler(cmd.Context(), func(_ *core.App, sched *scheduler.Scheduler) error {
				deleted, err := sched.DeleteSource(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("%w: %s", scheduler.ErrSourceNotFound, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed source %s\n", args[0])
				return nil
			})
		},
	})

	return sourcesCmd
}

func renderSources(sources []models.Source) string {
	rows := make([][]string, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []string{src.ID, string(src.Type), yesNo(src.Active), formatTime(src.LastChecked), src.Source})
	}
	return renderTable([]string{"ID", "Type", "Active", "Last checked", "Source"}, rows, nil)
}
