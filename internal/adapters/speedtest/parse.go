package speedtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/ispwatch/internal/ports/secondary"
)

var errMissing = errors.New("missing")

// Parse decodes speedtest-cli --json output or Ookla speedtest --format=json
// output into a measurement. The raw output is kept on the record.
func Parse(out []byte) (*secondary.MeasurementRecord, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(out, &top); err != nil {
		return nil, &secondary.MeasurementParseError{Err: err}
	}

	var (
		rec *secondary.MeasurementRecord
		err error
	)
	if isObject(top["download"]) {
		rec, err = parseOokla(top)
	} else {
		rec, err = parseCLI(top)
	}
	if err != nil {
		return nil, err
	}

	for field, v := range map[string]float64{"download": rec.DownloadMbps, "upload": rec.UploadMbps, "ping": rec.LatencyMs} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &secondary.MeasurementParseError{Field: field, Err: fmt.Errorf("invalid value %v", v)}
		}
	}
	rec.Raw = append([]byte(nil), out...)
	return rec, nil
}

// speedtest-cli reports rates in bits/s.
func parseCLI(top map[string]json.RawMessage) (*secondary.MeasurementRecord, error) {
	down, err := number(top, "download")
	if err != nil {
		return nil, err
	}
	up, err := number(top, "upload")
	if err != nil {
		return nil, err
	}
	ping, err := number(top, "ping")
	if err != nil {
		return nil, err
	}

	var server struct {
		Sponsor string `json:"sponsor"`
		Name    string `json:"name"`
	}
	raw, ok := top["server"]
	if !ok {
		return nil, &secondary.MeasurementParseError{Field: "server", Err: errMissing}
	}
	if err := json.Unmarshal(raw, &server); err != nil {
		return nil, &secondary.MeasurementParseError{Field: "server", Err: err}
	}

	return &secondary.MeasurementRecord{
		TakenAt:      timestamp(top),
		DownloadMbps: round2(down / 1e6),
		UploadMbps:   round2(up / 1e6),
		LatencyMs:    round2(ping),
		Server:       fmt.Sprintf("%s (%s)", server.Sponsor, server.Name),
	}, nil
}

// Ookla's CLI reports bandwidth in bytes/s.
func parseOokla(top map[string]json.RawMessage) (*secondary.MeasurementRecord, error) {
	var result struct {
		Ping *struct {
			Latency *float64 `json:"latency"`
		} `json:"ping"`
		Download struct {
			Bandwidth *float64 `json:"bandwidth"`
		} `json:"download"`
		Upload *struct {
			Bandwidth *float64 `json:"bandwidth"`
		} `json:"upload"`
		Server struct {
			Name     string `json:"name"`
			Location string `json:"location"`
		} `json:"server"`
	}
	raw, _ := json.Marshal(top)
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &secondary.MeasurementParseError{Err: err}
	}
	if result.Download.Bandwidth == nil {
		return nil, &secondary.MeasurementParseError{Field: "download.bandwidth", Err: errMissing}
	}
	if result.Upload == nil || result.Upload.Bandwidth == nil {
		return nil, &secondary.MeasurementParseError{Field: "upload.bandwidth", Err: errMissing}
	}
	if result.Ping == nil || result.Ping.Latency == nil {
		return nil, &secondary.MeasurementParseError{Field: "ping.latency", Err: errMissing}
	}

	return &secondary.MeasurementRecord{
		TakenAt:      timestamp(top),
		DownloadMbps: round2(*result.Download.Bandwidth * 8 / 1e6),
		UploadMbps:   round2(*result.Upload.Bandwidth * 8 / 1e6),
		LatencyMs:    round2(*result.Ping.Latency),
		Server:       fmt.Sprintf("%s (%s)", result.Server.Name, result.Server.Location),
	}, nil
}

func number(top map[string]json.RawMessage, field string) (float64, error) {
	raw, ok := top[field]
	if !ok || string(raw) == "null" {
		return 0, &secondary.MeasurementParseError{Field: field, Err: errMissing}
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &secondary.MeasurementParseError{Field: field, Err: err}
	}
	return v, nil
}

// timestamp returns the utility's own timestamp, or zero if absent or unparseable.
func timestamp(top map[string]json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(top["timestamp"], &s); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func isObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
