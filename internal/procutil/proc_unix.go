//go:build !windows

package procutil

import (
	"errors"
	"os"
	"syscall"
)

// Alive reports whether pid is a running process on this host.
// known is false when liveness could not be determined.
func Alive(pid int) (alive bool, known bool) {
	if pid <= 0 {
		return false, true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, true
	}
	// Signal 0 doesn't send anything, it only checks the process exists.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true, true
	}
	if errors.Is(err, syscall.EPERM) {
		// Exists but owned by someone else.
		return true, true
	}
	return false, true
}
