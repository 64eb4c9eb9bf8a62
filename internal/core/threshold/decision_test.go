package threshold

import (
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	contract := Contract{AdvertisedMbps: 1000, ThresholdPercent: 70}

	tests := []struct {
		name         string
		samples      []float64
		policy       Policy
		minFailures  int
		wantVerdict  Verdict
		wantFailures int
	}{
		{
			name:         "single latest below",
			samples:      []float64{900, 200},
			policy:       PolicySingle,
			minFailures:  1,
			wantVerdict:  VerdictBelow,
			wantFailures: 1,
		},
		{
			name:         "single latest recovered",
			samples:      []float64{200, 900},
			policy:       PolicySingle,
			minFailures:  1,
			wantVerdict:  VerdictOK,
			wantFailures: 1,
		},
		{
			name:         "min policy with not enough failures",
			samples:      []float64{900, 650, 950},
			policy:       PolicyMin,
			minFailures:  2,
			wantVerdict:  VerdictOK,
			wantFailures: 1,
		},
		{
			name:         "min policy with enough failures",
			samples:      []float64{600, 650, 950},
			policy:       PolicyMin,
			minFailures:  2,
			wantVerdict:  VerdictBelow,
			wantFailures: 2,
		},
		{
			name:         "median OK despite outliers",
			samples:      []float64{100, 900, 950},
			policy:       PolicyMedian,
			minFailures:  1,
			wantVerdict:  VerdictOK,
			wantFailures: 1,
		},
		{
			name:         "empty window is OK",
			samples:      nil,
			policy:       PolicyMin,
			minFailures:  1,
			wantVerdict:  VerdictOK,
			wantFailures: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decide(Window{DownloadsMbps: tt.samples}, tt.policy, tt.minFailures, contract)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Verdict != tt.wantVerdict {
				t.Errorf("verdict = %s, want %s (%s)", d.Verdict, tt.wantVerdict, d.Summary())
			}
			if d.Failures != tt.wantFailures {
				t.Errorf("failures = %d, want %d", d.Failures, tt.wantFailures)
			}
			if d.ShouldFile() != (tt.wantVerdict == VerdictBelow) {
				t.Error("ShouldFile disagrees with verdict")
			}
		})
	}
}

func TestDecide_InvalidInputs(t *testing.T) {
	if _, err := Decide(Window{}, PolicyMin, 1, Contract{AdvertisedMbps: 0, ThresholdPercent: 70}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for zero advertised, got %v", err)
	}
	if _, err := Decide(Window{}, PolicyMin, 0, Contract{AdvertisedMbps: 100, ThresholdPercent: 70}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for zero min failures, got %v", err)
	}
}
