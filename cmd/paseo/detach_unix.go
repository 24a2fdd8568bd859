//go:build linux || darwin

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it survives this process
// exiting once onboard has confirmed readiness.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
