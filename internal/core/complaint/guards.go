package complaint

import (
	"fmt"
	"strings"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CreateContext provides context for creating a new complaint record.
type CreateContext struct {
	Period         string
	PeriodHasFiled bool
	EvidenceCount  int
	Text           string
}

// CanCreate evaluates whether a new PENDING record may be written.
// Rules:
//   - the period must not already have a FILED record
//   - at least one measurement must be cited
//   - the complaint text must not be empty
func CanCreate(ctx CreateContext) GuardResult {
	if ctx.Period == "" {
		return GuardResult{Allowed: false, Reason: "complaint period is required"}
	}
	if ctx.PeriodHasFiled {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("a complaint for %s has already been filed", ctx.Period),
		}
	}
	if ctx.EvidenceCount == 0 {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("complaint for %s cites no measurements", ctx.Period),
		}
	}
	if strings.TrimSpace(ctx.Text) == "" {
		return GuardResult{Allowed: false, Reason: "complaint text is empty"}
	}
	return GuardResult{Allowed: true}
}

// TransitionContext provides context for a status transition.
type TransitionContext struct {
	ComplaintID     int64
	Period          string
	From            Status
	To              Status
	ConfirmationRef string
	PeriodHasFiled  bool // another record for the period is already FILED
}

// CanTransition evaluates whether a record may move From -> To.
// Rules:
//   - transitions are monotonic: only PENDING records change
//   - the target must be a terminal status
//   - FILED requires a confirmation reference
//   - FILED is refused when the period already has a FILED record
func CanTransition(ctx TransitionContext) GuardResult {
	if !IsValid(ctx.To) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown complaint status %q", ctx.To),
		}
	}
	if ctx.From != StatusPending {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("complaint %d is %s and can no longer change", ctx.ComplaintID, ctx.From),
		}
	}
	if !IsTerminal(ctx.To) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("complaint %d cannot move from %s to %s", ctx.ComplaintID, ctx.From, ctx.To),
		}
	}
	if ctx.To == StatusFiled {
		if strings.TrimSpace(ctx.ConfirmationRef) == "" {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("complaint %d cannot be FILED without a confirmation reference", ctx.ComplaintID),
			}
		}
		if ctx.PeriodHasFiled {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("period %s already has a FILED complaint", ctx.Period),
			}
		}
	}
	return GuardResult{Allowed: true}
}
