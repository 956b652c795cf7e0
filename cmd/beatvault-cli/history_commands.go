package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/beatvault/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and export the download history",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryExportCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var q store.HistoryQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List download attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			page, err := app.Store.QueryHistory(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if page.Total == 0 {
				fmt.Fprintln(out, "No history records")
				return nil
			}

			rows := make([][]string, 0, len(page.Items))
			for _, rec := range page.Items {
				detail := ""
				if rec.ErrorDetail != nil {
					detail = *rec.ErrorDetail
				}
				at := rec.DownloadedAt
				rows = append(rows, []string{formatTime(&at), string(rec.Status), rec.Title, rec.Artist, rec.ExternalID, detail})
			}
			fmt.Fprint(out, renderTable([]string{"Time", "Status", "Title", "Artist", "External ID", "Error"}, rows, nil))
			fmt.Fprintf(out, "Page %d of %d (%d records)\n", page.Page, page.TotalPages, page.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.PageSize, "limit", store.DefaultHistoryPageSize, "Records per page")
	cmd.Flags().StringVar(&q.SourceID, "source", "", "Only records for this source id")
	cmd.Flags().StringVar(&q.Search, "search", "", "Case-insensitive title or artist match")
	return cmd
}

func newHistoryExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full history as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if strings.TrimSpace(output) == "" || output == "-" {
				return app.Store.ExportHistoryCSV(cmd.Context(), cmd.OutOrStdout())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			w := bufio.NewWriter(f)
			if err := app.Store.ExportHistoryCSV(cmd.Context(), w); err != nil {
				f.Close()
				return err
			}
			if err := w.Flush(); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
