//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr starts the server detached, in its own process group
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x00000008, // DETACHED_PROCESS
	}
}
