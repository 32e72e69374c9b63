//go:build windows

package store

import (
	"os"
	"syscall"
)

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Windows, FindProcess always succeeds; test with Signal(0) equivalent.
	return proc.Signal(syscall.Signal(0)) == nil
}
