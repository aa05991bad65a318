//go:build windows

package executor

import (
	"os"
	"os/exec"
)

func prepareCommand(cmd *exec.Cmd) {}

// Windows has no SIGTERM for console processes; terminate kills directly.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func signalExitCode(state *os.ProcessState) int {
	return 1
}
