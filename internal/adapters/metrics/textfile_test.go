package metrics_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/ispwatch/internal/adapters/metrics"
	"github.com/example/ispwatch/internal/ports/secondary"
)

func TestTextfileSink_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector", "ispwatch.prom")
	sink := metrics.NewTextfileSink(path)

	err := sink.Record(context.Background(), secondary.MetricsSnapshot{
		Measurement: &secondary.MeasurementRecord{
			TakenAt:      time.Unix(1709650800, 0),
			DownloadMbps: 650,
			UploadMbps:   20.5,
			LatencyMs:    12,
			Server:       "Comcast (Denver, CO)",
		},
		Below:          true,
		AdvertisedMbps: 1000,
		MinimumMbps:    700,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("textfile missing: %v", err)
	}
	got := string(data)
	for _, want := range []string{
		"ispwatch_download_mbps 650\n",
		"ispwatch_upload_mbps 20.5\n",
		"ispwatch_latency_ms 12\n",
		"ispwatch_below_threshold 1\n",
		"ispwatch_advertised_mbps 1000\n",
		"ispwatch_threshold_mbps 700\n",
		"ispwatch_last_measurement_timestamp_seconds ",
		`ispwatch_measurement_info{server="Comcast (Denver, CO)"} 1`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("textfile missing %q:\n%s", want, got)
		}
	}
}

func TestTextfileSink_RecordRequiresMeasurement(t *testing.T) {
	sink := metrics.NewTextfileSink(filepath.Join(t.TempDir(), "x.prom"))
	if err := sink.Record(context.Background(), secondary.MetricsSnapshot{}); err == nil {
		t.Fatal("expected error without a measurement")
	}
}
