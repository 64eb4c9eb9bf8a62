// Package remote runs read commands on the measurement host over ssh.
package remote

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

// DefaultTimeout bounds one remote command.
const DefaultTimeout = 60 * time.Second

// Config locates the measurement host.
type Config struct {
	Host    string
	User    string
	Dir     string   // remote working directory, optional
	Binary  string   // ssh executable, default "ssh"
	Options []string // extra ssh arguments
	Timeout time.Duration
}

type execFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// SSHExecutor implements secondary.RemoteExecutor with the ssh client binary.
// Authentication is whatever the operator's ssh setup provides; BatchMode
// keeps it from ever prompting.
type SSHExecutor struct {
	cfg  Config
	exec execFunc
}

// NewSSHExecutor creates an executor for cfg.
func NewSSHExecutor(cfg Config) *SSHExecutor {
	if cfg.Binary == "" {
		cfg.Binary = "ssh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &SSHExecutor{cfg: cfg, exec: runCommand}
}

// Host returns the remote host name.
func (e *SSHExecutor) Host() string {
	return e.cfg.Host
}

// Args returns the ssh argument vector for command.
func (e *SSHExecutor) Args(command string) []string {
	connectTimeout := int(e.cfg.Timeout / time.Second)
	if connectTimeout < 1 {
		connectTimeout = 1
	}
	args := []string{
		"-o", "BatchMode=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", connectTimeout),
	}
	args = append(args, e.cfg.Options...)

	target := e.cfg.Host
	if e.cfg.User != "" {
		target = e.cfg.User + "@" + e.cfg.Host
	}
	return append(args, target, command)
}

// Command returns the shell command sent to the host, prefixed with a cd
// into the configured directory.
func (e *SSHExecutor) Command(command string) string {
	if e.cfg.Dir == "" {
		return command
	}
	return "cd " + ShellQuote(e.cfg.Dir) + " && " + command
}

// Run executes command on the remote host and returns its stdout.
func (e *SSHExecutor) Run(ctx context.Context, command string) ([]byte, error) {
	if e.cfg.Host == "" {
		return nil, fmt.Errorf("%w: no remote host configured", secondary.ErrSyncUnreachable)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	stdout, stderr, err := e.exec(ctx, e.cfg.Binary, e.Args(e.Command(command))...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s", secondary.ErrSyncUnreachable, e.cfg.Host, e.cfg.Timeout)
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: %s", secondary.ErrSyncUnreachable, e.cfg.Host, msg)
	}
	return stdout, nil
}

// ShellQuote single-quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Ensure SSHExecutor implements the interface
var _ secondary.RemoteExecutor = (*SSHExecutor)(nil)
