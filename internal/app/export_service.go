package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ispwatch/internal/core/export"
	"github.com/example/ispwatch/internal/core/period"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// ExportServiceImpl renders a period's measurements as an export document.
type ExportServiceImpl struct {
	repo secondary.MeasurementRepository
	loc  *time.Location
	now  func() time.Time
}

// NewExportService creates a new ExportService. Periods are resolved in loc.
func NewExportService(repo secondary.MeasurementRepository, loc *time.Location) *ExportServiceImpl {
	return &ExportServiceImpl{repo: repo, loc: loc, now: time.Now}
}

// ExportPeriod returns the export document for date ("", "today", "yesterday"
// or YYYY-MM-DD).
func (s *ExportServiceImpl) ExportPeriod(ctx context.Context, date string) ([]byte, error) {
	p, err := period.Parse(date, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.Query(ctx, p.Start(), p.End())
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements for %s: %w", p, err)
	}

	doc := export.Document{
		Version:      export.Version,
		Period:       p.String(),
		GeneratedAt:  s.now().UTC(),
		Measurements: make([]export.Measurement, 0, len(records)),
	}
	for _, r := range records {
		doc.Measurements = append(doc.Measurements, export.Measurement{
			Timestamp:    r.TakenAt.UTC(),
			DownloadMbps: r.DownloadMbps,
			UploadMbps:   r.UploadMbps,
			LatencyMs:    r.LatencyMs,
			Server:       r.Server,
		})
	}
	return export.Encode(doc)
}
