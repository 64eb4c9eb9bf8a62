package app

import (
	"context"
	"fmt"

	"github.com/example/ispwatch/internal/core/threshold"
	"github.com/example/ispwatch/internal/ports/primary"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// HistoryServiceImpl implements the HistoryService interface.
type HistoryServiceImpl struct {
	measurements secondary.MeasurementRepository
	complaints   secondary.ComplaintRepository
	contract     threshold.Contract
}

// NewHistoryService creates a new HistoryService with injected dependencies.
func NewHistoryService(measurements secondary.MeasurementRepository, complaints secondary.ComplaintRepository, contract threshold.Contract) *HistoryServiceImpl {
	return &HistoryServiceImpl{
		measurements: measurements,
		complaints:   complaints,
		contract:     contract,
	}
}

// RecentMeasurements returns the newest measurements, newest first.
func (s *HistoryServiceImpl) RecentMeasurements(ctx context.Context, limit int) ([]*primary.Measurement, error) {
	records, err := s.measurements.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}

	ms := make([]*primary.Measurement, len(records))
	for i, r := range records {
		ms[i] = toMeasurement(r, s.contract)
	}
	return ms, nil
}

// RecentComplaints returns the newest filing attempts, newest first.
func (s *HistoryServiceImpl) RecentComplaints(ctx context.Context, limit int) ([]*primary.Complaint, error) {
	records, err := s.complaints.List(ctx, secondary.ComplaintFilters{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}

	cs := make([]*primary.Complaint, len(records))
	for i, r := range records {
		cs[i] = &primary.Complaint{
			ID:              r.ID,
			Period:          r.Period,
			Status:          r.Status,
			ConfirmationRef: r.ConfirmationRef,
			FailureReason:   r.FailureReason,
			EvidenceCount:   len(r.MeasurementIDs),
			CreatedAt:       r.CreatedAt,
			UpdatedAt:       r.UpdatedAt,
		}
	}
	return cs, nil
}

// toMeasurement converts a record and evaluates it against the contract.
func toMeasurement(r *secondary.MeasurementRecord, c threshold.Contract) *primary.Measurement {
	verdict, _ := threshold.Evaluate(r.DownloadMbps, c.AdvertisedMbps, c.ThresholdPercent)
	return &primary.Measurement{
		ID:             r.ID,
		TakenAt:        r.TakenAt,
		DownloadMbps:   r.DownloadMbps,
		UploadMbps:     r.UploadMbps,
		LatencyMs:      r.LatencyMs,
		Server:         r.Server,
		Origin:         r.Origin,
		PercentOfPlan:  c.PercentOfAdvertised(r.DownloadMbps),
		BelowThreshold: verdict == threshold.VerdictBelow,
	}
}
