// Package cli contains the table renderers behind the command-line flags.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/example/ispwatch/internal/ports/primary"
)

// HistoryAdapter translates --history and --complaints into HistoryService
// calls and renders the results.
type HistoryAdapter struct {
	service primary.HistoryService
	out     io.Writer
	loc     *time.Location
}

// NewHistoryAdapter creates a new HistoryAdapter. Times are shown in loc.
func NewHistoryAdapter(service primary.HistoryService, out io.Writer, loc *time.Location) *HistoryAdapter {
	if loc == nil {
		loc = time.Local
	}
	return &HistoryAdapter{service: service, out: out, loc: loc}
}

// Measurements prints the newest measurements.
func (a *HistoryAdapter) Measurements(ctx context.Context, limit int) ([]*primary.Measurement, error) {
	ms, err := a.service.RecentMeasurements(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}

	if len(ms) == 0 {
		fmt.Fprintln(a.out, "No speed tests recorded yet.")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Record one now:")
		fmt.Fprintln(a.out, "  ispwatch --dry-run")
		return ms, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tDOWN (Mbps)\tUP (Mbps)\tPING (ms)\t% PLAN\tSERVER\tSTATUS")
	fmt.Fprintln(w, "----\t-----------\t---------\t---------\t------\t------\t------")
	for _, m := range ms {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.1f\t%.1f%%\t%s\t%s\n",
			m.TakenAt.In(a.loc).Format("2006-01-02 15:04"),
			m.DownloadMbps,
			m.UploadMbps,
			m.LatencyMs,
			m.PercentOfPlan,
			server(m),
			measurementStatus(m),
		)
	}
	w.Flush()
	return ms, nil
}

// Complaints prints the newest filing attempts.
func (a *HistoryAdapter) Complaints(ctx context.Context, limit int) ([]*primary.Complaint, error) {
	cs, err := a.service.RecentComplaints(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}

	if len(cs) == 0 {
		fmt.Fprintln(a.out, "No complaints filed yet.")
		return cs, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPERIOD\tUPDATED\tEVIDENCE\tREFERENCE\tSTATUS")
	fmt.Fprintln(w, "--\t------\t-------\t--------\t---------\t------")
	for _, c := range cs {
		ref := c.ConfirmationRef
		if ref == "" {
			ref = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			c.ID,
			c.Period,
			c.UpdatedAt.In(a.loc).Format("2006-01-02 15:04"),
			c.EvidenceCount,
			ref,
			complaintStatus(c.Status),
		)
	}
	w.Flush()

	for _, c := range cs {
		if c.FailureReason != "" {
			fmt.Fprintf(a.out, "  #%d: %s\n", c.ID, c.FailureReason)
		}
	}
	return cs, nil
}

func server(m *primary.Measurement) string {
	if m.Origin != "" && m.Origin != "local" {
		return fmt.Sprintf("%s [%s]", m.Server, m.Origin)
	}
	return m.Server
}

func measurementStatus(m *primary.Measurement) string {
	if m.BelowThreshold {
		return color.New(color.FgRed).Sprint("LOW")
	}
	return color.New(color.FgGreen).Sprint("OK")
}

func complaintStatus(status string) string {
	switch status {
	case "FILED":
		return color.New(color.FgGreen).Sprint(status)
	case "FAILED":
		return color.New(color.FgRed).Sprint(status)
	case "PENDING":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgBlue).Sprint(status)
	}
}
