//go:build windows

package executor

import (
	"os/exec"
	"syscall"
)

// useCommandLine 让 cmd 收到逐字的命令行，不再经过 Go 的参数转义。
func useCommandLine(cmd *exec.Cmd, line string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: line}
}
