package secondary

import "context"

// SpeedTester defines the secondary port for the external measurement utility.
type SpeedTester interface {
	// Measure runs one throughput test. Failures are *MeasurementFailure or
	// *MeasurementParseError. The returned record has no ID yet.
	Measure(ctx context.Context) (*MeasurementRecord, error)
}

// MetricsSink defines the secondary port for exporting the latest measurement.
type MetricsSink interface {
	Record(ctx context.Context, snap MetricsSnapshot) error
}

// MetricsSnapshot is the state exported after a measurement.
type MetricsSnapshot struct {
	Measurement    *MeasurementRecord
	Below          bool
	AdvertisedMbps float64
	MinimumMbps    float64
}
