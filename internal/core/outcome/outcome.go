// Package outcome maps the result of a run to the process exit code.
package outcome

// Kind classifies how a run ended.
type Kind string

const (
	// KindOK: nothing needed filing, or filing was declined by the run guard
	// or suppressed by the operator.
	KindOK Kind = "ok"
	// KindFiled: a complaint was confirmed by the portal.
	KindFiled Kind = "filed"
	// KindWouldFile: a dry run reached the point of submission.
	KindWouldFile Kind = "would_file"
	// KindError: configuration, measurement, store, sync or filing failure.
	KindError Kind = "error"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitFiled = 2
)

// ExitCode returns the process exit code for k.
func ExitCode(k Kind) int {
	switch k {
	case KindFiled, KindWouldFile:
		return ExitFiled
	case KindError:
		return ExitError
	default:
		return ExitOK
	}
}
