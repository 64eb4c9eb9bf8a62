package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/ispwatch/internal/adapters/cli"
	"github.com/example/ispwatch/internal/core/outcome"
	"github.com/example/ispwatch/internal/ports/primary"
	"github.com/example/ispwatch/internal/wire"
)

// Result carries the exit code of the root command out of cobra.
type Result struct {
	Code int
}

type rootFlags struct {
	envFile     string
	dryRun      bool
	showBrowser bool
	textOnly    bool
	measureOnly bool
	emailOnly   bool
	noEmail     bool
	minFailures int
	date        string
	dailyReport bool
	history     bool
	complaints  bool
	limit       int
}

// options validates flag combinations and builds the run options.
func (f rootFlags) options() (primary.RunOptions, error) {
	if f.minFailures < 0 {
		return primary.RunOptions{}, fmt.Errorf("--min-failures must be positive")
	}
	if f.measureOnly && f.dailyReport {
		return primary.RunOptions{}, fmt.Errorf("--measure-only cannot be combined with --daily-report")
	}
	if f.measureOnly && f.emailOnly {
		return primary.RunOptions{}, fmt.Errorf("--measure-only cannot be combined with --email-only")
	}
	if f.date != "" && !f.dailyReport {
		return primary.RunOptions{}, fmt.Errorf("--date only applies to --daily-report")
	}

	return primary.RunOptions{
		DryRun:      f.dryRun || f.textOnly,
		ShowBrowser: f.showBrowser,
		TextOnly:    f.textOnly,
		MeasureOnly: f.measureOnly,
		EmailOnly:   f.emailOnly,
		NoEmail:     f.noEmail,
		MinFailures: f.minFailures,
		Date:        f.date,
	}, nil
}

// BindRoot adds the run flags and behavior to the root command. The
// returned Result holds the exit code once the command has executed.
func BindRoot(cmd *cobra.Command) *Result {
	var f rootFlags
	result := &Result{}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		wire.SetEnvFile(f.envFile)
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if f.history || f.complaints {
			adapter, err := wire.HistoryAdapterWithOutput(out)
			if err != nil {
				return err
			}
			return showHistory(ctx, adapter, f)
		}

		opts, err := f.options()
		if err != nil {
			return err
		}
		orch, err := wire.Orchestrator()
		if err != nil {
			return err
		}
		result.Code = run(ctx, orch, opts, f.dailyReport, out)
		return nil
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&f.envFile, "env-file", "", "Path to a .env file (default ./.env if present)")

	local := cmd.Flags()
	local.BoolVar(&f.dryRun, "dry-run", false, "Go through the filing flow but never submit")
	local.BoolVar(&f.showBrowser, "show-browser", false, "Run the browser visibly so the challenge can be solved")
	local.BoolVar(&f.textOnly, "text-only", false, "Print the complaint that would be filed without a browser (implies --dry-run)")
	local.BoolVar(&f.measureOnly, "measure-only", false, "Record and evaluate, never file")
	local.BoolVar(&f.emailOnly, "email-only", false, "Evaluate and send the notification, never file")
	local.BoolVar(&f.noEmail, "no-email", false, "Send no email notifications")
	local.IntVar(&f.minFailures, "min-failures", 0, "Below-threshold measurements required to file (default MIN_FAILURES)")
	local.BoolVar(&f.dailyReport, "daily-report", false, "Evaluate a whole day and file once for it")
	local.StringVar(&f.date, "date", "", "Report period for --daily-report: YYYY-MM-DD, today or yesterday")
	local.BoolVar(&f.history, "history", false, "Show recent speed tests")
	local.BoolVar(&f.complaints, "complaints", false, "Show recent complaints")
	local.IntVar(&f.limit, "limit", 10, "Rows shown by --history and --complaints")
	cmd.MarkFlagsMutuallyExclusive("history", "complaints", "daily-report")

	return result
}

func showHistory(ctx context.Context, adapter *cliadapter.HistoryAdapter, f rootFlags) error {
	if f.limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}
	if f.history {
		_, err := adapter.Measurements(ctx, f.limit)
		return err
	}
	_, err := adapter.Complaints(ctx, f.limit)
	return err
}

// run executes one flow and prints its outcome. Errors are already part of
// the outcome, so only the exit code is returned.
func run(ctx context.Context, orch primary.Orchestrator, opts primary.RunOptions, report bool, out io.Writer) int {
	var (
		o   *primary.RunOutcome
		err error
	)
	if report {
		o, err = orch.RunReport(ctx, opts)
	} else {
		o, err = orch.RunMeasurement(ctx, opts)
	}

	if o == nil {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return outcome.ExitError
	}
	cliadapter.PrintOutcome(out, o, opts.DryRun)
	return o.ExitCode()
}
