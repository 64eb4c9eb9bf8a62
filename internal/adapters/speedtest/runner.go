// Package speedtest runs the external throughput utility and parses its output.
package speedtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/example/ispwatch/internal/ports/secondary"
)

// DefaultCommand is the utility invocation used when none is configured.
const DefaultCommand = "speedtest-cli --json"

// DefaultTimeout bounds one utility run.
const DefaultTimeout = 2 * time.Minute

// execFunc runs name with args and returns stdout and stderr.
type execFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Runner implements secondary.SpeedTester by running a command.
type Runner struct {
	command []string
	timeout time.Duration
	exec    execFunc
	now     func() time.Time
}

// NewRunner creates a Runner for command (split on whitespace).
func NewRunner(command string, timeout time.Duration) *Runner {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = strings.Fields(DefaultCommand)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		command: fields,
		timeout: timeout,
		exec:    runCommand,
		now:     time.Now,
	}
}

// Measure runs the utility once. There are no retries.
func (r *Runner) Measure(ctx context.Context) (*secondary.MeasurementRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := r.now()
	stdout, stderr, err := r.exec(ctx, r.command[0], r.command[1:]...)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, &secondary.MeasurementFailure{Reason: fmt.Sprintf("timed out after %s", r.timeout), Err: err}
		case ctx.Err() != nil:
			return nil, &secondary.MeasurementFailure{Reason: "cancelled", Err: ctx.Err()}
		}
		reason := strings.TrimSpace(string(stderr))
		if reason == "" {
			reason = r.command[0] + " failed"
		}
		return nil, &secondary.MeasurementFailure{Reason: reason, Err: err}
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, &secondary.MeasurementFailure{Reason: "utility produced no output"}
	}

	rec, err := Parse(stdout)
	if err != nil {
		return nil, err
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = started.UTC()
	}
	return rec, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Ensure Runner implements the interface
var _ secondary.SpeedTester = (*Runner)(nil)
