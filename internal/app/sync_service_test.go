package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/ispwatch/internal/core/export"
	"github.com/example/ispwatch/internal/ports/secondary"
)

func remoteExport(t *testing.T, period string, ms ...export.Measurement) []byte {
	t.Helper()
	data, err := export.Encode(export.Document{Period: period, GeneratedAt: time.Now().UTC(), Measurements: ms})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestSyncService_Pull(t *testing.T) {
	ts := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	exec := &mockRemoteExecutor{
		host: "pi.local",
		out: remoteExport(t, testPeriod,
			export.Measurement{Timestamp: ts, DownloadMbps: 310, UploadMbps: 20, LatencyMs: 9, Server: " Comcast "},
			export.Measurement{Timestamp: ts.Add(time.Hour), DownloadMbps: 880, UploadMbps: 21, LatencyMs: 10, Server: "Comcast"},
		),
	}
	repo := newMockMeasurementRepository()
	svc := NewSyncService(exec, repo, "", zaptest.NewLogger(t))

	res, err := svc.Pull(context.Background(), testPeriod)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if res.Fetched != 2 || res.Inserted != 2 || res.Host != "pi.local" {
		t.Errorf("unexpected result %+v", res)
	}
	if exec.commands[0] != "./ispwatch export --date 2024-03-05" {
		t.Errorf("command = %q", exec.commands[0])
	}

	first := repo.records[0]
	if first.Origin != "pi.local" || first.Server != "Comcast" || len(first.Raw) == 0 {
		t.Errorf("unexpected stored record %+v", first)
	}

	// Pulling the same period again adds nothing.
	res, err = svc.Pull(context.Background(), testPeriod)
	if err != nil {
		t.Fatalf("second Pull failed: %v", err)
	}
	if res.Inserted != 0 || len(repo.records) != 2 {
		t.Errorf("second pull inserted %d (store has %d)", res.Inserted, len(repo.records))
	}
}

func TestSyncService_Pull_Errors(t *testing.T) {
	tests := []struct {
		name    string
		period  string
		exec    *mockRemoteExecutor
		wantErr error
	}{
		{
			name:    "unreachable",
			period:  testPeriod,
			exec:    &mockRemoteExecutor{host: "pi", err: fmt.Errorf("%w: connection refused", secondary.ErrSyncUnreachable)},
			wantErr: secondary.ErrSyncUnreachable,
		},
		{
			name:    "garbage output",
			period:  testPeriod,
			exec:    &mockRemoteExecutor{host: "pi", out: []byte("bash: ./ispwatch: No such file or directory")},
			wantErr: secondary.ErrSyncDataInvalid,
		},
		{
			name:    "wrong period",
			period:  testPeriod,
			exec:    &mockRemoteExecutor{host: "pi", out: remoteExport(t, "2024-03-04")},
			wantErr: secondary.ErrSyncDataInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockMeasurementRepository()
			svc := NewSyncService(tt.exec, repo, "/opt/ispwatch/ispwatch", nil)

			_, err := svc.Pull(context.Background(), tt.period)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(repo.records) != 0 {
				t.Error("nothing should be merged")
			}
		})
	}
}

func TestSyncService_Pull_InvalidPeriod(t *testing.T) {
	exec := &mockRemoteExecutor{host: "pi"}
	svc := NewSyncService(exec, newMockMeasurementRepository(), "", nil)

	if _, err := svc.Pull(context.Background(), "today; rm -rf /"); err == nil {
		t.Fatal("expected an error for a malformed period")
	}
	if len(exec.commands) != 0 {
		t.Error("no remote command should run")
	}
}

func TestSyncService_RoundTripsExport(t *testing.T) {
	source := newMockMeasurementRepository()
	source.add(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), 310, "Comcast")
	source.add(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), 650, "Comcast")
	source.add(time.Date(2024, 3, 6, 1, 0, 0, 0, time.UTC), 900, "Comcast")

	exporter := NewExportService(source, time.UTC)
	out, err := exporter.ExportPeriod(context.Background(), testPeriod)
	if err != nil {
		t.Fatalf("ExportPeriod failed: %v", err)
	}

	target := newMockMeasurementRepository()
	svc := NewSyncService(&mockRemoteExecutor{host: "pi", out: out}, target, "", nil)
	res, err := svc.Pull(context.Background(), testPeriod)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("inserted %d, want 2", res.Inserted)
	}
}
