// Package report renders complaint and summary text from measurements.
// This is part of the Functional Core - no I/O, only pure functions.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/ispwatch/internal/core/threshold"
)

// Sample is one measurement as seen by the report.
type Sample struct {
	ID           int64
	TakenAt      time.Time
	DownloadMbps float64
	UploadMbps   float64
	LatencyMs    float64
	Server       string
}

// Service describes the subscriber's contract for the report header.
type Service struct {
	ISPName        string
	AccountNumber  string
	ServiceAddress string
	Contract       threshold.Contract
}

// Stats summarizes a window of samples.
type Stats struct {
	Total        int
	Failed       int
	FailureRate  float64 // percent
	AvgDownload  float64
	MinDownload  float64
	MaxDownload  float64
	AvgUpload    float64
	AvgLatency   float64
	Worst        Sample
	AvgPercent   float64 // average download as percent of advertised
	WorstPercent float64 // worst download as percent of advertised
}

// Summarize computes statistics over samples. It returns false for an empty window.
func Summarize(samples []Sample, c threshold.Contract) (Stats, bool) {
	if len(samples) == 0 {
		return Stats{}, false
	}

	s := Stats{Total: len(samples), MinDownload: math.Inf(1), MaxDownload: math.Inf(-1)}
	var down, up, lat float64
	for _, m := range samples {
		down += m.DownloadMbps
		up += m.UploadMbps
		lat += m.LatencyMs
		if m.DownloadMbps < s.MinDownload {
			s.MinDownload = m.DownloadMbps
			s.Worst = m
		}
		s.MaxDownload = math.Max(s.MaxDownload, m.DownloadMbps)
		if m.DownloadMbps < c.MinimumMbps() {
			s.Failed++
		}
	}

	n := float64(len(samples))
	s.AvgDownload = down / n
	s.AvgUpload = up / n
	s.AvgLatency = lat / n
	s.FailureRate = float64(s.Failed) / n * 100
	s.AvgPercent = c.PercentOfAdvertised(s.AvgDownload)
	s.WorstPercent = c.PercentOfAdvertised(s.Worst.DownloadMbps)
	return s, true
}

func writeServiceDetails(b *strings.Builder, svc Service) {
	fmt.Fprintf(b, "I am filing this complaint regarding inadequate internet service from %s.\n\n", svc.ISPName)
	b.WriteString("SERVICE DETAILS:\n")
	fmt.Fprintf(b, "- Account Number: %s\n", svc.AccountNumber)
	fmt.Fprintf(b, "- Service Address: %s\n", svc.ServiceAddress)
	fmt.Fprintf(b, "- Advertised Speed: %s Mbps\n", formatRate(svc.Contract.AdvertisedMbps))
	fmt.Fprintf(b, "- Minimum Acceptable (%s%%): %.1f Mbps\n\n", formatRate(svc.Contract.ThresholdPercent), svc.Contract.MinimumMbps())
}

// SingleComplaint renders the complaint for one failing measurement.
func SingleComplaint(svc Service, m Sample, loc *time.Location) string {
	pct := svc.Contract.PercentOfAdvertised(m.DownloadMbps)

	var b strings.Builder
	writeServiceDetails(&b, svc)

	b.WriteString("SPEED TEST RESULTS:\n")
	fmt.Fprintf(&b, "- Date/Time: %s\n", m.TakenAt.In(loc).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Download Speed: %.2f Mbps (%.1f%% of advertised)\n", m.DownloadMbps, pct)
	fmt.Fprintf(&b, "- Upload Speed: %.2f Mbps\n", m.UploadMbps)
	fmt.Fprintf(&b, "- Ping: %.1f ms\n", m.LatencyMs)
	fmt.Fprintf(&b, "- Test Server: %s\n\n", m.Server)

	b.WriteString("COMPLAINT:\n")
	fmt.Fprintf(&b, "I am paying for %s Mbps internet service but consistently receiving speeds far below what is advertised. ",
		formatRate(svc.Contract.AdvertisedMbps))
	fmt.Fprintf(&b, "The speed test above shows I am receiving only %.1f%% of my advertised speed, which is below the %s%% threshold I consider acceptable.\n\n",
		pct, formatRate(svc.Contract.ThresholdPercent))
	fmt.Fprintf(&b, "This represents a failure by %s to deliver the service I am paying for. ", svc.ISPName)
	fmt.Fprintf(&b, "I request that the FCC investigate this matter and require %s to either provide the advertised speeds or adjust my billing accordingly.\n\n", svc.ISPName)
	b.WriteString("This complaint was automatically generated from automated speed testing.")
	return b.String()
}

// PeriodComplaint renders the complaint summarizing a whole period.
func PeriodComplaint(svc Service, period string, samples []Sample, loc *time.Location) string {
	st, ok := Summarize(samples, svc.Contract)
	if !ok {
		return ""
	}

	var b strings.Builder
	writeServiceDetails(&b, svc)

	fmt.Fprintf(&b, "DAILY SUMMARY FOR %s:\n", period)
	fmt.Fprintf(&b, "- Total Speed Tests: %d\n", st.Total)
	fmt.Fprintf(&b, "- Tests Below Threshold: %d (%.1f%%)\n", st.Failed, st.FailureRate)
	fmt.Fprintf(&b, "- Average Download Speed: %.2f Mbps (%.1f%% of advertised)\n", st.AvgDownload, st.AvgPercent)
	fmt.Fprintf(&b, "- Average Upload Speed: %.2f Mbps\n", st.AvgUpload)
	fmt.Fprintf(&b, "- Average Ping: %.1f ms\n", st.AvgLatency)
	fmt.Fprintf(&b, "- Minimum Download Speed: %.2f Mbps\n", st.MinDownload)
	fmt.Fprintf(&b, "- Maximum Download Speed: %.2f Mbps\n\n", st.MaxDownload)

	b.WriteString("WORST RESULT:\n")
	fmt.Fprintf(&b, "- Date/Time: %s\n", st.Worst.TakenAt.In(loc).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Download Speed: %.2f Mbps (%.1f%% of advertised)\n", st.Worst.DownloadMbps, st.WorstPercent)
	fmt.Fprintf(&b, "- Upload Speed: %.2f Mbps\n", st.Worst.UploadMbps)
	fmt.Fprintf(&b, "- Ping: %.1f ms\n", st.Worst.LatencyMs)
	fmt.Fprintf(&b, "- Test Server: %s\n\n", st.Worst.Server)

	fmt.Fprintf(&b, "ALL SPEED TESTS FOR %s:\n", period)
	b.WriteString(TestLines(samples, svc.Contract, loc))
	b.WriteString("\n\n")

	b.WriteString("COMPLAINT:\n")
	fmt.Fprintf(&b, "I am paying for %s Mbps internet service but on %s, my average download speed was only %.2f Mbps (%.1f%% of advertised). ",
		formatRate(svc.Contract.AdvertisedMbps), period, st.AvgDownload, st.AvgPercent)
	fmt.Fprintf(&b, "Out of %d speed tests conducted, %d (%.1f%%) showed download speeds below the %s%% threshold.\n\n",
		st.Total, st.Failed, st.FailureRate, formatRate(svc.Contract.ThresholdPercent))
	fmt.Fprintf(&b, "The worst test showed only %.2f Mbps (%.1f%% of advertised speed).\n\n", st.Worst.DownloadMbps, st.WorstPercent)
	fmt.Fprintf(&b, "This represents a consistent failure by %s to deliver the service I am paying for. ", svc.ISPName)
	fmt.Fprintf(&b, "I request that the FCC investigate this matter and require %s to either provide the advertised speeds or adjust my billing accordingly.\n\n", svc.ISPName)
	b.WriteString("This complaint was automatically generated based on automated speed testing throughout the day.")
	return b.String()
}

// TestLines renders one line per sample, marking the ones below threshold.
func TestLines(samples []Sample, c threshold.Contract, loc *time.Location) string {
	lines := make([]string, 0, len(samples))
	for _, m := range samples {
		status := "OK"
		if m.DownloadMbps < c.MinimumMbps() {
			status = "FAILED"
		}
		lines = append(lines, fmt.Sprintf("  %s - Down: %7.2f Mbps (%5.1f%%) | Up: %7.2f Mbps | Ping: %5.1f ms | %s",
			m.TakenAt.In(loc).Format("15:04:05"), m.DownloadMbps, c.PercentOfAdvertised(m.DownloadMbps),
			m.UploadMbps, m.LatencyMs, status))
	}
	return strings.Join(lines, "\n")
}

// formatRate prints whole numbers without a fractional part.
func formatRate(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}
