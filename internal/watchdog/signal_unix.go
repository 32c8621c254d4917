//go:build !windows

package watchdog

import "syscall"

// defaultKill sends a signal to a Unix process.
func defaultKill(pid int32, sig syscall.Signal) error {
	return syscall.Kill(int(pid), sig)
}
