package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/example/ispwatch/internal/core/complaint"
	"github.com/example/ispwatch/internal/ports/secondary"
)

func TestHistoryService_RecentMeasurements(t *testing.T) {
	measurements := newMockMeasurementRepository()
	base := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	measurements.add(base, 900, "a")
	measurements.add(base.Add(time.Hour), 350, "b")
	measurements.add(base.Add(2*time.Hour), 700, "c")

	svc := NewHistoryService(measurements, newMockComplaintRepository(), testContract)
	got, err := svc.RecentMeasurements(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentMeasurements failed: %v", err)
	}

	type row struct {
		Server  string
		Percent float64
		Below   bool
	}
	var rows []row
	for _, m := range got {
		rows = append(rows, row{m.Server, m.PercentOfPlan, m.BelowThreshold})
	}
	want := []row{{"c", 70, false}, {"b", 35, true}}
	if diff := cmp.Diff(want, rows, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("measurements mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryService_RecentComplaints(t *testing.T) {
	complaints := newMockComplaintRepository()
	ctx := context.Background()
	complaints.Insert(ctx, &secondary.ComplaintRecord{Period: "2024-03-04", Status: string(complaint.StatusFailed), FailureReason: "abandoned", MeasurementIDs: []int64{1}})
	complaints.Insert(ctx, &secondary.ComplaintRecord{Period: "2024-03-05", Status: string(complaint.StatusFiled), ConfirmationRef: "7311042", MeasurementIDs: []int64{2, 3, 4}})

	svc := NewHistoryService(newMockMeasurementRepository(), complaints, testContract)
	got, err := svc.RecentComplaints(ctx, 10)
	if err != nil {
		t.Fatalf("RecentComplaints failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d complaints, want 2", len(got))
	}
	if got[0].Period != "2024-03-05" || got[0].EvidenceCount != 3 || got[0].ConfirmationRef != "7311042" {
		t.Errorf("newest complaint = %+v", got[0])
	}
	if got[1].FailureReason != "abandoned" {
		t.Errorf("oldest complaint = %+v", got[1])
	}
}
