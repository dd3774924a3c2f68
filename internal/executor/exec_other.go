//go:build !windows

package executor

import "os/exec"

func useCommandLine(cmd *exec.Cmd, line string) {}
