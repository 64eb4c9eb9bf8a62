package report

import (
	"strings"
	"testing"
	"time"

	"github.com/example/ispwatch/internal/core/threshold"
)

func testService() Service {
	return Service{
		ISPName:        "Verizon",
		AccountNumber:  "123456",
		ServiceAddress: "1 Main St, Springfield, PA 19064",
		Contract:       threshold.Contract{AdvertisedMbps: 1000, ThresholdPercent: 70},
	}
}

func testSamples() []Sample {
	base := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	return []Sample{
		{ID: 1, TakenAt: base, DownloadMbps: 950, UploadMbps: 40, LatencyMs: 10, Server: "A (X)"},
		{ID: 2, TakenAt: base.Add(time.Hour), DownloadMbps: 300, UploadMbps: 20, LatencyMs: 30, Server: "B (Y)"},
		{ID: 3, TakenAt: base.Add(2 * time.Hour), DownloadMbps: 650, UploadMbps: 30, LatencyMs: 20, Server: "A (X)"},
	}
}

func TestSummarize(t *testing.T) {
	st, ok := Summarize(testSamples(), testService().Contract)
	if !ok {
		t.Fatal("expected stats")
	}
	if st.Total != 3 || st.Failed != 2 {
		t.Errorf("Total/Failed = %d/%d, want 3/2", st.Total, st.Failed)
	}
	if st.Worst.ID != 2 {
		t.Errorf("worst = %d, want 2", st.Worst.ID)
	}
	if st.MinDownload != 300 || st.MaxDownload != 950 {
		t.Errorf("min/max = %v/%v", st.MinDownload, st.MaxDownload)
	}
	if st.AvgLatency != 20 {
		t.Errorf("avg latency = %v", st.AvgLatency)
	}

	if _, ok := Summarize(nil, testService().Contract); ok {
		t.Error("empty window should not summarize")
	}
}

func TestPeriodComplaint(t *testing.T) {
	text := PeriodComplaint(testService(), "2026-10-18", testSamples(), time.UTC)

	for _, want := range []string{
		"inadequate internet service from Verizon",
		"- Advertised Speed: 1000 Mbps",
		"- Minimum Acceptable (70%): 700.0 Mbps",
		"DAILY SUMMARY FOR 2026-10-18:",
		"- Tests Below Threshold: 2 (66.7%)",
		"- Download Speed: 300.00 Mbps (30.0% of advertised)",
		"  09:00:00 - Down:  300.00 Mbps ( 30.0%) | Up:   20.00 Mbps | Ping:  30.0 ms | FAILED",
		"  08:00:00 - Down:  950.00 Mbps ( 95.0%) | Up:   40.00 Mbps | Ping:  10.0 ms | OK",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("complaint missing %q\n%s", want, text)
		}
	}

	if PeriodComplaint(testService(), "2026-10-18", nil, time.UTC) != "" {
		t.Error("empty window should produce no complaint")
	}
}

func TestSingleComplaint(t *testing.T) {
	m := testSamples()[1]
	text := SingleComplaint(testService(), m, time.UTC)

	if !strings.Contains(text, "- Date/Time: 2026-10-18 09:00:00") {
		t.Errorf("missing timestamp:\n%s", text)
	}
	if !strings.Contains(text, "only 30.0% of my advertised speed") {
		t.Errorf("missing percentage:\n%s", text)
	}
}

func TestNotificationText(t *testing.T) {
	if got := ComplaintSubject(FilingDryRun, "Verizon", "2026-10-18"); got != "FCC Complaint (DRY RUN) - Verizon - 2026-10-18" {
		t.Errorf("ComplaintSubject = %q", got)
	}
	if got := DailySubject("2026-10-18", 0); got != "Speed Test Summary - 2026-10-18 - All OK" {
		t.Errorf("DailySubject = %q", got)
	}
	if got := DailySubject("2026-10-18", 2); got != "Speed Test Summary - 2026-10-18 - 2 Below Threshold" {
		t.Errorf("DailySubject = %q", got)
	}

	body := ComplaintBody(FilingFiled, "2026-10-18", "7311042", "", "text")
	if !strings.Contains(body, "Confirmation: 7311042") || strings.Contains(body, "Error:") {
		t.Errorf("unexpected body:\n%s", body)
	}

	if !strings.Contains(DailyBody(testService(), "2026-10-18", nil, time.UTC), "No speed tests") {
		t.Error("empty daily body should say so")
	}
}
