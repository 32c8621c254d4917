//go:build windows

package watchdog

import (
	"fmt"
	"syscall"
)

// defaultKill is not supported on Windows; the watchdog targets Linux
// guests. Callers on Windows must inject a KillFunc.
func defaultKill(pid int32, sig syscall.Signal) error {
	return fmt.Errorf("signal delivery not supported on windows (pid %d, sig %v)", pid, sig)
}
