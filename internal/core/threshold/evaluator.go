// Package threshold decides whether measured throughput is below the
// contracted rate. Everything here is pure: no I/O, no clock.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidConfiguration is returned for a non-positive advertised rate or an
// out-of-range percentage.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Verdict is the outcome of an evaluation.
type Verdict string

const (
	VerdictOK    Verdict = "OK"
	VerdictBelow Verdict = "BELOW_THRESHOLD"
)

// Contract is the advertised rate and the fraction of it the operator tolerates.
type Contract struct {
	AdvertisedMbps   float64
	ThresholdPercent float64
}

// Validate checks the contract's ranges.
func (c Contract) Validate() error {
	if math.IsNaN(c.AdvertisedMbps) || c.AdvertisedMbps <= 0 {
		return fmt.Errorf("%w: advertised rate must be positive, got %v", ErrInvalidConfiguration, c.AdvertisedMbps)
	}
	if math.IsNaN(c.ThresholdPercent) || c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
		return fmt.Errorf("%w: threshold percent must be within [0, 100], got %v", ErrInvalidConfiguration, c.ThresholdPercent)
	}
	return nil
}

// MinimumMbps is the lowest acceptable rate.
func (c Contract) MinimumMbps() float64 {
	return c.AdvertisedMbps * c.ThresholdPercent / 100
}

// PercentOfAdvertised expresses value as a percentage of the advertised rate.
func (c Contract) PercentOfAdvertised(value float64) float64 {
	if c.AdvertisedMbps <= 0 {
		return 0
	}
	return value / c.AdvertisedMbps * 100
}

// Evaluate returns BELOW_THRESHOLD iff value < advertised × percent / 100.
// A value exactly at the threshold is OK.
func Evaluate(value, advertisedMbps, thresholdPercent float64) (Verdict, error) {
	c := Contract{AdvertisedMbps: advertisedMbps, ThresholdPercent: thresholdPercent}
	if err := c.Validate(); err != nil {
		return "", err
	}
	if value < c.MinimumMbps() {
		return VerdictBelow, nil
	}
	return VerdictOK, nil
}

// Policy selects how a window of samples is reduced to one value.
type Policy string

const (
	PolicySingle Policy = "single" // most recent sample
	PolicyMin    Policy = "min"
	PolicyMedian Policy = "median"
	PolicyMean   Policy = "mean"
)

// ParsePolicy accepts a policy name case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PolicySingle, PolicyMin, PolicyMedian, PolicyMean:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown aggregation policy %q (want single, min, median or mean)", ErrInvalidConfiguration, s)
}

// Aggregate reduces samples (chronological order) according to policy.
// It returns false for an empty window.
func Aggregate(policy Policy, samples []float64) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	switch policy {
	case PolicyMin:
		m := samples[0]
		for _, s := range samples[1:] {
			m = math.Min(m, s)
		}
		return m, true
	case PolicyMedian:
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2, true
		}
		return sorted[mid], true
	case PolicyMean:
		var sum float64
		for _, s := range samples {
			sum += s
		}
		return sum / float64(len(samples)), true
	default:
		return samples[len(samples)-1], true
	}
}
