package scheduler

import (
	"io"
	"os"
)

// Descriptors is the capability for saving, redirecting and restoring the
// process-wide standard output and error. It exists as an interface so the
// test suite can observe redirection without mutating the real fd table.
type Descriptors interface {
	// Save duplicates the current stdout and stderr for later restoration.
	Save() error

	// Redirect points the process-wide fds 1 and 2 at target, so children
	// spawned afterwards inherit it.
	Redirect(target *os.File) error

	// Restore puts the saved descriptors back and releases the duplicates.
	Restore() error

	// SavedStdout is the terminal as it was before the redirection; the
	// tee helper writes through it.
	SavedStdout() io.Writer

	// SavedStderr is the pre-redirection stderr.
	SavedStderr() io.Writer
}

// SystemDescriptors returns the real fd-table implementation.
func SystemDescriptors() Descriptors {
	return &fdTable{}
}
