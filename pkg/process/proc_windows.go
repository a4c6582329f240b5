//go:build windows

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func shellCommand(script string) *exec.Cmd {
	return exec.Command("cmd", "/c", script)
}

// setProcessGroup starts the child in a new console process group so it can
// receive CTRL_BREAK without the parent.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// interrupt sends CTRL_BREAK to the child's group. The router stays shielded
// until release is called so a console event echoed to the parent does not
// trigger shutdown handlers.
func (r *Runner) interrupt(p *Process) (release func(), err error) {
	release = r.router.Shield()
	return release, windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.pid))
}

func killProcess(p *Process) error {
	return p.cmd.Process.Kill()
}
