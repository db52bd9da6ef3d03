//go:build windows

package scheduler

import (
	"io"
	"os"
)

// Windows offers no dup2-style surgery on the inherited console handles,
// so a scope runs without redirection there: children keep writing to the
// console directly and the build log only receives what the orchestrator
// itself sends down the tee pipe.
type fdTable struct{}

func (t *fdTable) Save() error { return nil }

func (t *fdTable) Redirect(target *os.File) error { return nil }

func (t *fdTable) Restore() error { return nil }

func (t *fdTable) SavedStdout() io.Writer { return os.Stdout }

func (t *fdTable) SavedStderr() io.Writer { return os.Stderr }
