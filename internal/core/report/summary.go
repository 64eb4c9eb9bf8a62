package report

import (
	"fmt"
	"strings"
	"time"
)

// FilingStatus is the headline of a notification.
type FilingStatus string

const (
	FilingFiled  FilingStatus = "Filed"
	FilingDryRun FilingStatus = "(DRY RUN)"
	FilingFailed FilingStatus = "FAILED"

	// FilingHeld: below threshold, but the run was asked only to notify.
	FilingHeld FilingStatus = "Not Filed (email only)"
)

// ComplaintSubject is the notification subject for a filing attempt.
func ComplaintSubject(status FilingStatus, ispName, period string) string {
	return fmt.Sprintf("FCC Complaint %s - %s - %s", status, ispName, period)
}

// ComplaintBody is the notification body for a filing attempt.
func ComplaintBody(status FilingStatus, period, confirmationRef, failure, complaintText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Complaint for %s: %s\n", period, status)
	if confirmationRef != "" {
		fmt.Fprintf(&b, "Confirmation: %s\n", confirmationRef)
	}
	if failure != "" {
		fmt.Fprintf(&b, "Error: %s\n", failure)
	}
	b.WriteString("\n--- Complaint text ---\n")
	b.WriteString(complaintText)
	b.WriteString("\n")
	return b.String()
}

// DailySubject is the subject of the daily summary notification.
func DailySubject(period string, failed int) string {
	status := "All OK"
	if failed > 0 {
		status = fmt.Sprintf("%d Below Threshold", failed)
	}
	return fmt.Sprintf("Speed Test Summary - %s - %s", period, status)
}

// DailyBody renders the daily summary notification.
func DailyBody(svc Service, period string, samples []Sample, loc *time.Location) string {
	st, ok := Summarize(samples, svc.Contract)
	if !ok {
		return fmt.Sprintf("No speed tests were recorded for %s.\n", period)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Speed test summary for %s (%s)\n\n", period, svc.ISPName)
	fmt.Fprintf(&b, "Advertised: %s Mbps | Threshold (%s%%): %.1f Mbps\n",
		formatRate(svc.Contract.AdvertisedMbps), formatRate(svc.Contract.ThresholdPercent), svc.Contract.MinimumMbps())
	fmt.Fprintf(&b, "Tests: %d | Below threshold: %d (%.1f%%)\n", st.Total, st.Failed, st.FailureRate)
	fmt.Fprintf(&b, "Download avg/min/max: %.2f / %.2f / %.2f Mbps\n", st.AvgDownload, st.MinDownload, st.MaxDownload)
	fmt.Fprintf(&b, "Upload avg: %.2f Mbps | Ping avg: %.1f ms\n\n", st.AvgUpload, st.AvgLatency)
	b.WriteString(TestLines(samples, svc.Contract, loc))
	b.WriteString("\n")
	return b.String()
}
