//go:build !windows

package advanced

import "os/exec"

func setWindowsNoConsole(cmd *exec.Cmd) {}
