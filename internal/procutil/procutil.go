// Package procutil identifies the current process for lock ownership.
package procutil

import "os"

// Hostname returns the host name, or "unknown" when it cannot be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// PID returns the current process id.
func PID() int {
	return os.Getpid()
}
