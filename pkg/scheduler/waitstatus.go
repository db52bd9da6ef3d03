package scheduler

import (
	"os"
	"syscall"
)

// normalizeExitCode turns a platform-raw wait status into a 0-255 exit
// code. Normal exits keep their low 8 bits; a fatal signal maps to
// 128+signal, matching the shell convention.
func normalizeExitCode(state *os.ProcessState) int {
	if state == nil {
		return 255
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		switch {
		case status.Exited():
			return status.ExitStatus() & 0xff
		case status.Signaled():
			code := 128 + int(status.Signal())
			if code > 255 {
				code = 255
			}
			return code
		}
	}
	code := state.ExitCode()
	if code < 0 {
		return 255
	}
	return code & 0xff
}
