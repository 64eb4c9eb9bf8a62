package export

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 10, 18, 8, 0, 0, 123456789, time.UTC)
	doc := Document{
		Period:      "2026-10-18",
		GeneratedAt: ts.Add(time.Hour),
		Measurements: []Measurement{
			{Timestamp: ts, DownloadMbps: 412.5, UploadMbps: 21, LatencyMs: 11.2, Server: "Acme (Springfield)"},
		},
	}

	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	doc.Version = Version
	if diff := cmp.Diff(doc, *got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: "  "},
		{name: "not json", data: "bash: ispwatch: command not found"},
		{name: "wrong version", data: `{"version":2,"period":"2026-10-18","measurements":[]}`},
		{name: "missing period", data: `{"version":1,"measurements":[]}`},
		{name: "unknown field", data: `{"version":1,"period":"2026-10-18","measurements":[],"config":{}}`},
		{name: "negative value", data: `{"version":1,"period":"2026-10-18","measurements":[{"timestamp":"2026-10-18T08:00:00Z","download_mbps":-1,"upload_mbps":1,"latency_ms":1,"server":"x"}]}`},
		{name: "missing timestamp", data: `{"version":1,"period":"2026-10-18","measurements":[{"download_mbps":1,"upload_mbps":1,"latency_ms":1,"server":"x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestEncode_EmptyMeasurementsIsArray(t *testing.T) {
	data, err := Encode(Document{Period: "2026-10-18"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Measurements == nil || len(doc.Measurements) != 0 {
		t.Errorf("expected empty measurement list, got %#v", doc.Measurements)
	}
}
