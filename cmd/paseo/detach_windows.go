//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detach starts the child with its own process group so it survives this
// process exiting once onboard has confirmed readiness.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
