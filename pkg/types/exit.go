package types

import "fmt"

// Stable process exit codes. These are part of the tool's contract with
// scripts and CI wrappers and must never be renumbered.
const (
	ExitOK = 0

	// ExitManifestUnavailable: Ember.toml could not be found when the
	// configuration had to be regenerated.
	ExitManifestUnavailable = 3

	// ExitUnsupportedRuntime: ember was started on a platform it does not
	// support.
	ExitUnsupportedRuntime = 4

	// ExitSubcommandLaunch: the OS refused to create a build child process.
	ExitSubcommandLaunch = 5

	// ExitSubcommandFailed: a build subcommand ran and exited nonzero.
	ExitSubcommandFailed = 6

	// ExitTeeNoLogfile: ember-tee was started without its log path argument.
	ExitTeeNoLogfile = 7
)

// ExitError carries a stable exit code from core packages up to main, which
// is the only place allowed to terminate the process.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps err with a stable exit code.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...interface{}) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
