//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func shellCommand(script string) *exec.Cmd {
	return exec.Command("sh", "-c", script)
}

// setProcessGroup puts the child in a new process group led by itself.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interrupt sends SIGTERM to the process group.
func (r *Runner) interrupt(p *Process) (release func(), err error) {
	return func() {}, signalGroup(p.pid, unix.SIGTERM)
}

func killProcess(p *Process) error {
	return signalGroup(p.pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
