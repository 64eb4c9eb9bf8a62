// Package export defines the measurement export document exchanged between a
// measurement host and a filing host.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Version is the current export document version.
const Version = 1

// ErrInvalidDocument is wrapped by every Decode failure.
var ErrInvalidDocument = errors.New("invalid export document")

// Document is the export payload.
type Document struct {
	Version      int           `json:"version"`
	Period       string        `json:"period"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Measurements []Measurement `json:"measurements"`
}

// Measurement is one exported measurement.
type Measurement struct {
	Timestamp    time.Time `json:"timestamp"`
	DownloadMbps float64   `json:"download_mbps"`
	UploadMbps   float64   `json:"upload_mbps"`
	LatencyMs    float64   `json:"latency_ms"`
	Server       string    `json:"server"`
}

// Encode renders doc as indented JSON.
func Encode(doc Document) ([]byte, error) {
	if doc.Version == 0 {
		doc.Version = Version
	}
	if doc.Measurements == nil {
		doc.Measurements = []Measurement{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses and validates an export document.
func Decode(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidDocument)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidDocument, doc.Version)
	}
	if doc.Period == "" {
		return nil, fmt.Errorf("%w: missing period", ErrInvalidDocument)
	}
	for i, m := range doc.Measurements {
		if m.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: measurement %d has no timestamp", ErrInvalidDocument, i)
		}
		for _, v := range []float64{m.DownloadMbps, m.UploadMbps, m.LatencyMs} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: measurement %d has an invalid value", ErrInvalidDocument, i)
			}
		}
	}
	return &doc, nil
}
