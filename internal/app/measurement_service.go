package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/threshold"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// MeasurementServiceImpl runs the measurement utility and records the result.
type MeasurementServiceImpl struct {
	tester   secondary.SpeedTester
	repo     secondary.MeasurementRepository
	metrics  secondary.MetricsSink // optional
	contract threshold.Contract
	logger   *zap.Logger
}

// NewMeasurementService creates a new MeasurementService with injected dependencies.
// metrics may be nil.
func NewMeasurementService(tester secondary.SpeedTester, repo secondary.MeasurementRepository, metrics secondary.MetricsSink, contract threshold.Contract, logger *zap.Logger) *MeasurementServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeasurementServiceImpl{
		tester:   tester,
		repo:     repo,
		metrics:  metrics,
		contract: contract,
		logger:   logger,
	}
}

// Measure runs one test and persists it. Measurement errors are returned
// unwrapped in kind (*MeasurementFailure, *MeasurementParseError) and nothing
// is stored.
func (s *MeasurementServiceImpl) Measure(ctx context.Context) (*secondary.MeasurementRecord, error) {
	rec, err := s.tester.Measure(ctx)
	if err != nil {
		return nil, err
	}
	if rec.Origin == "" {
		rec.Origin = "local"
	}

	id, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record measurement: %w", err)
	}
	rec.ID = id

	verdict, err := threshold.Evaluate(rec.DownloadMbps, s.contract.AdvertisedMbps, s.contract.ThresholdPercent)
	if err != nil {
		return nil, err
	}

	logFields := []zap.Field{
		zap.Int64("measurement_id", rec.ID),
		zap.Float64("download_mbps", rec.DownloadMbps),
		zap.Float64("upload_mbps", rec.UploadMbps),
		zap.Float64("latency_ms", rec.LatencyMs),
		zap.String("server", rec.Server),
		zap.String("verdict", string(verdict)),
	}
	s.logger.Info("measurement recorded", logFields...)

	if s.metrics != nil {
		snap := secondary.MetricsSnapshot{
			Measurement:    rec,
			Below:          verdict == threshold.VerdictBelow,
			AdvertisedMbps: s.contract.AdvertisedMbps,
			MinimumMbps:    s.contract.MinimumMbps(),
		}
		if err := s.metrics.Record(ctx, snap); err != nil {
			s.logger.Warn("failed to export metrics", zap.Error(err))
		}
	}
	return rec, nil
}
