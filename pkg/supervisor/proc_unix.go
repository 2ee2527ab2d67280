//go:build !windows

package supervisor

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// procControl is the POSIX implementation of process control: signals for
// termination and liveness, a new session for detachment.
type procControl struct{}

// sysProcAttr detaches the worker into its own session so it survives the
// supervising process's exit.
func (procControl) sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// alive reports whether the pid refers to a live process. Signal 0 probes
// without delivering; EPERM still means the process exists.
func (procControl) alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// terminate requests a graceful shutdown.
func (procControl) terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// kill forcefully stops the process.
func (procControl) kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// raisePriority lowers the worker's nice value so it is deprioritized last
// under resource pressure. Needs privilege; denial is expected and not
// fatal.
func (procControl) raisePriority(pid int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, -5)
}
