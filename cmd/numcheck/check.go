package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/numcheck/internal/app"
	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/config"
	"github.com/foxzi/numcheck/internal/input"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/report"
	"github.com/foxzi/numcheck/internal/storage"
)

var (
	checkBatchSize   int
	checkDelay       time.Duration
	checkConcurrency int
	checkSkip        bool
	checkProvider    string
	checkOutput      string
	checkFormat      string
	checkSave        bool
	checkQuiet       bool
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a file of numbers and check their reachability",
	Long: `Process a file with one phone number per line ("-" reads stdin).
Numbers are handled in chunks with a pause between chunks. Ctrl-C stops
the run after the current chunk and reports the partial results.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVar(&checkBatchSize, "batch-size", 0, "Numbers per chunk (default from config)")
	checkCmd.Flags().DurationVar(&checkDelay, "delay", 0, "Pause between chunks (default from config)")
	checkCmd.Flags().IntVar(&checkConcurrency, "concurrency", 0, "Parallel lookups per chunk (default from config)")
	checkCmd.Flags().BoolVar(&checkSkip, "skip-reachability", false, "Only validate the format")
	checkCmd.Flags().StringVar(&checkProvider, "provider", "", "Reachability provider (simulated, twilio, none)")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "", "Write the report to this file instead of stdout")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "", "Report format: table, csv or json (default table on stdout, csv for files)")
	checkCmd.Flags().BoolVar(&checkSave, "save", false, "Store the run in the configured database")
	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Do not print progress and summary")

	rootCmd.AddCommand(checkCmd)
}

// checkOptions merges the flags that were set over the configured defaults
func checkOptions(cmd *cobra.Command, base batch.Options) batch.Options {
	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		base.BatchSize = checkBatchSize
	}
	if flags.Changed("delay") {
		base.Delay = checkDelay
	}
	if flags.Changed("concurrency") {
		base.Concurrency = checkConcurrency
	}
	if flags.Changed("skip-reachability") {
		base.SkipReachability = checkSkip
	}
	return base
}

// reportFormat picks the output format for the destination
func reportFormat(format, output string) (string, error) {
	if format == "" {
		if output == "" {
			return "table", nil
		}
		return "csv", nil
	}

	switch format {
	case "csv", "json":
		return format, nil
	case "table":
		if output != "" {
			return "", fmt.Errorf("table format can only be printed to stdout")
		}
		return format, nil
	default:
		return "", fmt.Errorf("unknown format %q (must be table, csv or json)", format)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if checkProvider != "" {
		cfg.Reachability.Provider = checkProvider
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	opts := checkOptions(cmd, cfg.Batch)
	if err := opts.Validate(); err != nil {
		return err
	}

	format, err := reportFormat(checkFormat, checkOutput)
	if err != nil {
		return err
	}

	numbers, err := input.LoadFromFile(args[0])
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		return fmt.Errorf("no numbers found in %s", args[0])
	}

	stderr := cmd.ErrOrStderr()
	// Batch logs would interleave with progress output
	logLevel := "warn"
	if cfg.Logging.Level == "debug" {
		logLevel = "debug"
	}
	logger := app.SetupLogger(config.LoggingConfig{Level: logLevel, Format: "text"}, stderr)

	store, err := app.LoadRules(cfg.Rules, nil)
	if err != nil {
		return err
	}

	// Quotas and saved runs share the run database
	var runs *storage.BoltStorage
	if checkSave || (cfg.Reachability.Quota.Enabled && !opts.SkipReachability) {
		runs, err = storage.NewBoltStorage(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer runs.Close()
	}

	var limiter *quota.Limiter
	if runs != nil && cfg.Reachability.Quota.Enabled {
		limiter, err = quota.NewLimiter(runs.DB(), &cfg.Reachability.Quota.Config)
		if err != nil {
			return fmt.Errorf("failed to create quota limiter: %w", err)
		}
		defer limiter.Stop()
	}

	checker, err := app.NewChecker(cfg, limiter)
	if err != nil {
		return err
	}

	runner := batch.NewRunner(store, checker, nil, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress batch.ProgressFunc
	if !checkQuiet {
		progress = func(completed, total, chunk int) {
			fmt.Fprint(stderr, progressLine(completed, total, chunk))
		}
	}

	result, err := runner.Run(ctx, numbers, opts, progress)
	if err != nil {
		return err
	}
	if !checkQuiet {
		fmt.Fprintln(stderr)
	}

	if checkSave {
		id, err := saveRun(context.WithoutCancel(ctx), runs, len(numbers), opts, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Run saved: %s\n", id)
	}

	var out io.Writer = cmd.OutOrStdout()
	if checkOutput != "" {
		f, err := os.Create(checkOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeReport(out, format, result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if !checkQuiet {
		report.PrintSummary(stderr, result.Summary, result.Cancelled)
	}
	if result.Cancelled {
		fmt.Fprintf(stderr, "Run cancelled: %d of %d numbers processed\n", len(result.Results), len(numbers))
	}
	return nil
}

// progressLine renders one carriage-return progress update
func progressLine(completed, total, chunk int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	return fmt.Sprintf("\rchunk %d: %d/%d (%.0f%%)", chunk, completed, total, pct)
}

func writeReport(w io.Writer, format string, run *batch.Run) error {
	switch format {
	case "json":
		return report.WriteJSON(w, run)
	case "table":
		report.PrintTable(w, run.Results)
		return nil
	default:
		return report.WriteCSV(w, run.Results)
	}
}

// saveRun stores a finished CLI run so it can be listed and exported later
func saveRun(ctx context.Context, runs *storage.BoltStorage, total int, opts batch.Options, result *batch.Run) (string, error) {
	status := storage.StatusCompleted
	if result.Cancelled {
		status = storage.StatusCancelled
	}

	summary := result.Summary
	run := &storage.Run{
		Status:     status,
		Source:     "cli",
		Options:    opts,
		Total:      total,
		Processed:  len(result.Results),
		Results:    result.Results,
		Summary:    &summary,
		StartedAt:  &result.StartedAt,
		FinishedAt: &result.FinishedAt,
	}
	if err := runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return run.ID, nil
}
