//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr starts the server in a new session, detached from the terminal
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
