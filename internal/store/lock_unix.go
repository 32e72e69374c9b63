//go:build !windows

package store

import "syscall"

func processAlive(pid int) bool {
	// Signal 0 tests if the process exists without sending a signal.
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
