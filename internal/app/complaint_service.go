package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/complaint"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// ReasonAbandoned marks a PENDING record left behind by a run that died.
const ReasonAbandoned = "abandoned"

// ReasonInterrupted marks an attempt cancelled by a signal.
const ReasonInterrupted = "interrupted"

// OpenComplaintRequest carries the fields of a new PENDING record.
type OpenComplaintRequest struct {
	Period         string
	Text           string
	MeasurementIDs []int64
}

// FinishComplaintRequest carries a terminal status for a PENDING record.
type FinishComplaintRequest struct {
	ComplaintID     int64
	Status          complaint.Status
	ConfirmationRef string
	FailureReason   string
}

// ComplaintServiceImpl owns complaint record creation and finalization.
type ComplaintServiceImpl struct {
	repo   secondary.ComplaintRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewComplaintService creates a new ComplaintService with injected dependencies.
func NewComplaintService(repo secondary.ComplaintRepository, logger *zap.Logger) *ComplaintServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplaintServiceImpl{repo: repo, now: time.Now, logger: logger}
}

// HasFiled reports whether period already has a FILED complaint.
func (s *ComplaintServiceImpl) HasFiled(ctx context.Context, period string) (bool, error) {
	filed, err := s.repo.HasFiled(ctx, period)
	if err != nil {
		return false, fmt.Errorf("failed to check filed complaints: %w", err)
	}
	return filed, nil
}

// Open writes a PENDING record citing its evidence and returns its ID.
func (s *ComplaintServiceImpl) Open(ctx context.Context, req OpenComplaintRequest) (int64, error) {
	filed, err := s.HasFiled(ctx, req.Period)
	if err != nil {
		return 0, err
	}

	guard := complaint.CanCreate(complaint.CreateContext{
		Period:         req.Period,
		PeriodHasFiled: filed,
		EvidenceCount:  len(req.MeasurementIDs),
		Text:           req.Text,
	})
	if err := guard.Error(); err != nil {
		return 0, err
	}

	now := s.now().UTC()
	id, err := s.repo.Insert(ctx, &secondary.ComplaintRecord{
		Period:         req.Period,
		Status:         string(complaint.InitialStatus()),
		ComplaintText:  req.Text,
		MeasurementIDs: req.MeasurementIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create complaint: %w", err)
	}
	s.logger.Info("complaint opened", zap.Int64("complaint_id", id), zap.String("period", req.Period),
		zap.Int("evidence", len(req.MeasurementIDs)))
	return id, nil
}

// Finish moves a PENDING record to a terminal status.
func (s *ComplaintServiceImpl) Finish(ctx context.Context, req FinishComplaintRequest) error {
	record, err := s.repo.GetByID(ctx, req.ComplaintID)
	if err != nil {
		return fmt.Errorf("failed to load complaint %d: %w", req.ComplaintID, err)
	}

	filed := false
	if req.Status == complaint.StatusFiled {
		if filed, err = s.HasFiled(ctx, record.Period); err != nil {
			return err
		}
	}

	guard := complaint.CanTransition(complaint.TransitionContext{
		ComplaintID:     record.ID,
		Period:          record.Period,
		From:            complaint.Status(record.Status),
		To:              req.Status,
		ConfirmationRef: req.ConfirmationRef,
		PeriodHasFiled:  filed,
	})
	if err := guard.Error(); err != nil {
		return err
	}

	result := complaint.ApplyStatusTransition(req.Status, s.now())
	update := secondary.ComplaintStatusUpdate{
		Status:          string(result.NewStatus),
		ConfirmationRef: req.ConfirmationRef,
		FailureReason:   req.FailureReason,
		UpdatedAt:       result.UpdatedAt,
	}
	if err := s.repo.UpdateStatus(ctx, record.ID, update); err != nil {
		return fmt.Errorf("failed to finalize complaint %d: %w", record.ID, err)
	}

	s.logger.Info("complaint finalized",
		zap.Int64("complaint_id", record.ID),
		zap.String("period", record.Period),
		zap.String("status", update.Status),
		zap.String("confirmation_ref", update.ConfirmationRef),
		zap.String("reason", update.FailureReason),
	)
	return nil
}

// AbandonOpen finalizes any PENDING records of period as FAILED. Call it only
// while holding the run lock: a PENDING record then belongs to a dead run.
func (s *ComplaintServiceImpl) AbandonOpen(ctx context.Context, period string) (int, error) {
	abandoned := 0
	for {
		open, err := s.repo.LatestOpen(ctx, period)
		if err != nil {
			return abandoned, fmt.Errorf("failed to look up open complaints: %w", err)
		}
		if open == nil {
			return abandoned, nil
		}
		s.logger.Warn("finalizing abandoned complaint", zap.Int64("complaint_id", open.ID), zap.String("period", period))
		err = s.Finish(ctx, FinishComplaintRequest{
			ComplaintID:   open.ID,
			Status:        complaint.StatusFailed,
			FailureReason: ReasonAbandoned,
		})
		if err != nil {
			return abandoned, err
		}
		abandoned++
	}
}
