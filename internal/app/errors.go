package app

import (
	"errors"
	"fmt"

	"github.com/example/ispwatch/internal/core/filing"
)

// Filing errors. Each is fatal for the attempt; the complaint record is
// finalized before the error reaches the caller.
var (
	ErrAuthFailure         = errors.New("portal rejected the credentials")
	ErrChallengeTimeout    = errors.New("challenge not cleared in time")
	ErrChallengeUnattended = fmt.Errorf("%w: browser is headless, nobody can clear the challenge", ErrChallengeTimeout)
	ErrSessionExpired      = errors.New("portal session expired during submission")
	ErrSubmissionRejected  = errors.New("portal rejected the submission")
	ErrDuplicateSubmission = errors.New("portal reports a duplicate submission")
)

// AutomationError is an unexpected page structure or navigation failure.
type AutomationError struct {
	State       filing.State
	Op          string
	Err         error
	Diagnostics string // base path of the captured page, if any
}

func (e *AutomationError) Error() string {
	msg := fmt.Sprintf("automation failed in %s: %s", e.State, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostics != "" {
		msg += " (diagnostics: " + e.Diagnostics + ")"
	}
	return msg
}

func (e *AutomationError) Unwrap() error { return e.Err }
