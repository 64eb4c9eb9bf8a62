// Package metrics exports the latest measurement in the Prometheus text
// format for node_exporter's textfile collector.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/ispwatch/internal/ports/secondary"
)

// TextfileSink implements secondary.MetricsSink by rewriting a .prom file.
type TextfileSink struct {
	path     string
	registry *prometheus.Registry

	download   prometheus.Gauge
	upload     prometheus.Gauge
	latency    prometheus.Gauge
	below      prometheus.Gauge
	advertised prometheus.Gauge
	minimum    prometheus.Gauge
	lastRun    prometheus.Gauge
	info       *prometheus.GaugeVec
}

// NewTextfileSink creates a sink writing to path.
func NewTextfileSink(path string) *TextfileSink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &TextfileSink{
		path:     path,
		registry: reg,
		download: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_download_mbps",
			Help: "Download rate of the latest measurement in Mbps",
		}),
		upload: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_upload_mbps",
			Help: "Upload rate of the latest measurement in Mbps",
		}),
		latency: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_latency_ms",
			Help: "Latency of the latest measurement in milliseconds",
		}),
		below: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_below_threshold",
			Help: "1 if the latest measurement was below the complaint threshold",
		}),
		advertised: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_advertised_mbps",
			Help: "Contracted download rate in Mbps",
		}),
		minimum: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_threshold_mbps",
			Help: "Download rate below which a measurement counts as failing",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ispwatch_last_measurement_timestamp_seconds",
			Help: "Unix time of the latest measurement",
		}),
		info: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ispwatch_measurement_info",
			Help: "Server used for the latest measurement",
		}, []string{"server"}),
	}
}

// Record updates the gauges and atomically rewrites the textfile.
func (s *TextfileSink) Record(ctx context.Context, snap secondary.MetricsSnapshot) error {
	m := snap.Measurement
	if m == nil {
		return fmt.Errorf("no measurement to export")
	}

	s.download.Set(m.DownloadMbps)
	s.upload.Set(m.UploadMbps)
	s.latency.Set(m.LatencyMs)
	s.advertised.Set(snap.AdvertisedMbps)
	s.minimum.Set(snap.MinimumMbps)
	s.lastRun.Set(float64(m.TakenAt.UnixNano()) / 1e9)
	if snap.Below {
		s.below.Set(1)
	} else {
		s.below.Set(0)
	}
	s.info.Reset()
	s.info.WithLabelValues(m.Server).Set(1)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(s.path, s.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Ensure TextfileSink implements the interface
var _ secondary.MetricsSink = (*TextfileSink)(nil)
