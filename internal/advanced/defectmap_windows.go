//go:build windows

package advanced

import (
	"os/exec"
	"syscall"
)

func setWindowsNoConsole(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
