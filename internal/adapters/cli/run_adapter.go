package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/ispwatch/internal/core/outcome"
	"github.com/example/ispwatch/internal/ports/primary"
)

// PrintOutcome writes the operator-facing summary of a run.
func PrintOutcome(out io.Writer, o *primary.RunOutcome, showText bool) {
	if o == nil {
		return
	}

	if m := o.Measurement; m != nil {
		fmt.Fprintf(out, "Download: %.2f Mbps (%.1f%% of plan) | Upload: %.2f Mbps | Ping: %.1f ms\n",
			m.DownloadMbps, m.PercentOfPlan, m.UploadMbps, m.LatencyMs)
	}
	if o.Summary != "" {
		fmt.Fprintln(out, o.Summary)
	}

	if showText && o.ComplaintText != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "--- Complaint text ---")
		fmt.Fprintln(out, o.ComplaintText)
		fmt.Fprintln(out, "--- End ---")
		fmt.Fprintln(out)
	}

	switch o.Kind {
	case outcome.KindFiled:
		fmt.Fprintf(out, "%s complaint for %s (reference %s)\n", color.New(color.FgGreen).Sprint("FILED"), o.Period, o.ConfirmationRef)
	case outcome.KindWouldFile:
		fmt.Fprintf(out, "%s a complaint for %s would have been filed\n", color.New(color.FgYellow).Sprint("DRY RUN"), o.Period)
	case outcome.KindError:
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed).Sprint("ERROR"), o.Message)
	default:
		if o.Message != "" {
			fmt.Fprintln(out, o.Message)
		}
	}
}
