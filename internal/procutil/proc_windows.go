//go:build windows

package procutil

// Alive reports whether pid is a running process on this host.
// Liveness is not checked on Windows; stale locks expire by age instead.
func Alive(pid int) (alive bool, known bool) {
	return false, false
}
