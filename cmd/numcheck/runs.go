package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/numcheck/internal/report"
	"github.com/foxzi/numcheck/internal/storage"
)

var (
	runsListStatus string
	runsListLimit  int
	runsExportFmt  string
	runsExportOut  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Stored run commands",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show run details and summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run_id>",
	Short: "Export run results as CSV or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run_id>",
	Short: "Delete a finished run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	runsListCmd.Flags().StringVar(&runsListStatus, "status", "", "Filter by status (pending, running, completed, cancelled, failed)")
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 50, "Maximum number of runs to show")

	runsExportCmd.Flags().StringVarP(&runsExportFmt, "format", "f", "csv", "Export format: csv or json")
	runsExportCmd.Flags().StringVarP(&runsExportOut, "output", "o", "", "Write to this file instead of stdout")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}

func openRunStorage() (*storage.BoltStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := storage.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run storage: %w", err)
	}
	return s, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	s, err := openRunStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	filter := storage.ListFilter{Limit: runsListLimit}
	if runsListStatus != "" {
		filter.Status = storage.Status(runsListStatus)
		if !filter.Status.Valid() {
			return fmt.Errorf("unknown status %q", runsListStatus)
		}
	}

	runs, err := s.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs stored")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCE\tPROGRESS\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			run.ID,
			run.Status,
			run.Source,
			run.Processed,
			run.Total,
			run.CreatedAt.Format(time.DateTime),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d runs\n", len(runs))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	s, err := openRunStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.Get(context.Background(), args[0])
	if err != nil {
		return runError(args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", run.ID)
	fmt.Fprintf(out, "Status:      %s\n", run.Status)
	if run.Source != "" {
		fmt.Fprintf(out, "Source:      %s\n", run.Source)
	}
	fmt.Fprintf(out, "Progress:    %d/%d\n", run.Processed, run.Total)
	fmt.Fprintf(out, "Batch size:  %d\n", run.Options.BatchSize)
	fmt.Fprintf(out, "Delay:       %s\n", run.Options.Delay)
	fmt.Fprintf(out, "Created:     %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.StartedAt != nil {
		fmt.Fprintf(out, "Started:     %s\n", run.StartedAt.Format(time.RFC3339))
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:    %s\n", run.FinishedAt.Format(time.RFC3339))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "Error:       %s\n", run.Error)
	}

	if run.Summary != nil {
		fmt.Fprintln(out)
		report.PrintSummary(out, *run.Summary, run.Status == storage.StatusCancelled)
	}
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	if runsExportFmt != "csv" && runsExportFmt != "json" {
		return fmt.Errorf("unknown format %q (must be csv or json)", runsExportFmt)
	}

	s, err := openRunStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.Get(context.Background(), args[0])
	if err != nil {
		return runError(args[0], err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if runsExportOut != "" {
		f, err := os.Create(runsExportOut)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if runsExportFmt == "json" {
		return report.WriteJSON(out, run.Report())
	}
	return report.WriteCSV(out, run.Results)
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	s, err := openRunStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(context.Background(), args[0]); err != nil {
		return runError(args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted\n", args[0])
	return nil
}

func runError(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("run %s not found", id)
	case errors.Is(err, storage.ErrRunActive):
		return fmt.Errorf("run %s is still active", id)
	default:
		return err
	}
}
