package threshold

import "fmt"

// Window is the set of download samples a decision is made over, oldest first.
type Window struct {
	DownloadsMbps []float64
}

// Decision is the combined verdict over a window.
type Decision struct {
	Verdict        Verdict
	Policy         Policy
	Aggregate      float64
	Samples        int
	Failures       int
	MinFailures    int
	MinimumMbps    float64
	AdvertisedMbps float64
}

// ShouldFile reports whether the decision warrants a complaint.
func (d Decision) ShouldFile() bool {
	return d.Verdict == VerdictBelow
}

// Summary renders a one-line explanation suitable for logs.
func (d Decision) Summary() string {
	return fmt.Sprintf("%s: %s=%.2f Mbps vs minimum %.2f Mbps, %d/%d samples below (need %d)",
		d.Verdict, d.Policy, d.Aggregate, d.MinimumMbps, d.Failures, d.Samples, d.MinFailures)
}

// Decide evaluates a window. The verdict is BELOW_THRESHOLD only when the
// aggregated value is below the threshold and at least minFailures individual
// samples are below it as well. An empty window is OK.
func Decide(w Window, policy Policy, minFailures int, c Contract) (Decision, error) {
	if err := c.Validate(); err != nil {
		return Decision{}, err
	}
	if minFailures < 1 {
		return Decision{}, fmt.Errorf("%w: min failures must be at least 1, got %d", ErrInvalidConfiguration, minFailures)
	}

	d := Decision{
		Verdict:        VerdictOK,
		Policy:         policy,
		Samples:        len(w.DownloadsMbps),
		MinFailures:    minFailures,
		MinimumMbps:    c.MinimumMbps(),
		AdvertisedMbps: c.AdvertisedMbps,
	}

	agg, ok := Aggregate(policy, w.DownloadsMbps)
	if !ok {
		return d, nil
	}
	d.Aggregate = agg

	for _, s := range w.DownloadsMbps {
		if v, _ := Evaluate(s, c.AdvertisedMbps, c.ThresholdPercent); v == VerdictBelow {
			d.Failures++
		}
	}

	v, err := Evaluate(agg, c.AdvertisedMbps, c.ThresholdPercent)
	if err != nil {
		return Decision{}, err
	}
	if v == VerdictBelow && d.Failures >= minFailures {
		d.Verdict = VerdictBelow
	}
	return d, nil
}
