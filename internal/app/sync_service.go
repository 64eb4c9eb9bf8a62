package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/export"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// SyncResult reports what a pull brought in.
type SyncResult struct {
	Host     string
	Period   string
	Fetched  int
	Inserted int
}

// SyncServiceImpl pulls a period's measurements from the measurement host and
// merges them into the local store.
type SyncServiceImpl struct {
	exec    secondary.RemoteExecutor
	repo    secondary.MeasurementRepository
	command string
	logger  *zap.Logger
}

// NewSyncService creates a new SyncService. command is the ispwatch binary on
// the remote host.
func NewSyncService(exec secondary.RemoteExecutor, repo secondary.MeasurementRepository, command string, logger *zap.Logger) *SyncServiceImpl {
	if command == "" {
		command = "./ispwatch"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncServiceImpl{
		exec:    exec,
		repo:    repo,
		command: command,
		logger:  logger,
	}
}

// ExportCommand is the shell command run on the measurement host.
func (s *SyncServiceImpl) ExportCommand(period string) string {
	return fmt.Sprintf("%s export --date %s", s.command, period)
}

// Pull fetches period from the measurement host. Transport failures wrap
// ErrSyncUnreachable, a bad document wraps ErrSyncDataInvalid.
func (s *SyncServiceImpl) Pull(ctx context.Context, period string) (*SyncResult, error) {
	if _, err := time.Parse("2006-01-02", period); err != nil {
		return nil, fmt.Errorf("invalid period %q: %w", period, err)
	}

	host := s.exec.Host()
	out, err := s.exec.Run(ctx, s.ExportCommand(period))
	if err != nil {
		return nil, err
	}

	doc, err := export.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", secondary.ErrSyncDataInvalid, err)
	}
	if doc.Period != period {
		return nil, fmt.Errorf("%w: asked for %s, got %s", secondary.ErrSyncDataInvalid, period, doc.Period)
	}

	records := make([]*secondary.MeasurementRecord, 0, len(doc.Measurements))
	for _, m := range doc.Measurements {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", secondary.ErrSyncDataInvalid, err)
		}
		records = append(records, &secondary.MeasurementRecord{
			TakenAt:      m.Timestamp.UTC(),
			DownloadMbps: m.DownloadMbps,
			UploadMbps:   m.UploadMbps,
			LatencyMs:    m.LatencyMs,
			Server:       strings.TrimSpace(m.Server),
			Raw:          raw,
			Origin:       host,
		})
	}

	inserted, err := s.repo.Merge(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to merge measurements from %s: %w", host, err)
	}

	result := &SyncResult{Host: host, Period: period, Fetched: len(records), Inserted: inserted}
	s.logger.Info("pulled measurements",
		zap.String("host", host),
		zap.String("period", period),
		zap.Int("fetched", result.Fetched),
		zap.Int("inserted", result.Inserted),
	)
	return result, nil
}
