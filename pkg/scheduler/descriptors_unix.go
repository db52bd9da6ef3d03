//go:build unix

package scheduler

import (
	"fmt"
	"io"
	"os"
)

// fdTable redirects the real process fd table with dup/dup2 so that child
// processes inherit the tee pipe as their stdout and stderr.
type fdTable struct {
	savedStdout *os.File
	savedStderr *os.File
}

func (t *fdTable) Save() error {
	stdoutCopy, err := dupFd(int(os.Stdout.Fd()))
	if err != nil {
		return fmt.Errorf("failed to duplicate stdout: %w", err)
	}
	stderrCopy, err := dupFd(int(os.Stderr.Fd()))
	if err != nil {
		return fmt.Errorf("failed to duplicate stderr: %w", err)
	}
	t.savedStdout = os.NewFile(uintptr(stdoutCopy), "stdout")
	t.savedStderr = os.NewFile(uintptr(stderrCopy), "stderr")
	return nil
}

func (t *fdTable) Redirect(target *os.File) error {
	if err := dupFdTo(int(target.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("failed to redirect stdout: %w", err)
	}
	if err := dupFdTo(int(target.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("failed to redirect stderr: %w", err)
	}
	return nil
}

func (t *fdTable) Restore() error {
	if t.savedStdout != nil {
		if err := dupFdTo(int(t.savedStdout.Fd()), int(os.Stdout.Fd())); err != nil {
			return fmt.Errorf("failed to restore stdout: %w", err)
		}
		_ = t.savedStdout.Close()
		t.savedStdout = nil
	}
	if t.savedStderr != nil {
		if err := dupFdTo(int(t.savedStderr.Fd()), int(os.Stderr.Fd())); err != nil {
			return fmt.Errorf("failed to restore stderr: %w", err)
		}
		_ = t.savedStderr.Close()
		t.savedStderr = nil
	}
	return nil
}

func (t *fdTable) SavedStdout() io.Writer {
	if t.savedStdout == nil {
		return os.Stdout
	}
	return t.savedStdout
}

func (t *fdTable) SavedStderr() io.Writer {
	if t.savedStderr == nil {
		return os.Stderr
	}
	return t.savedStderr
}
