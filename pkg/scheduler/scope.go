package scheduler

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ember-build/ember/pkg/destinations"
	"github.com/ember-build/ember/pkg/logger"
	"github.com/ember-build/ember/pkg/tee"
	"github.com/ember-build/ember/pkg/types"
)

// ErrScopeActive rejects a second overlapping scope. The redirected output
// descriptors are process-wide state, so exactly one scope may hold them.
var ErrScopeActive = errors.New("another scheduler scope already holds the output descriptors")

// scopeActive enforces the single-instance rule.
var scopeActive atomic.Bool

const subcommandFailureMessage = `ember: subcommand failed.
	This is not an issue with Ember, but indicates the build process couldn't be
	successfully completed. Review the errors above and modify the source code or
	the Ember.toml configuration to reflect the proper solution. If you suspect the
	build process is correct and it's Ember that doesn't pass the arguments properly,
	please report a bug at https://github.com/ember-build/ember/issues.
`

// Scope owns the redirected output descriptors and the tee helper for the
// lifetime of one build batch. Enter it with EnterScope and always Close
// it, on error paths included.
type Scope struct {
	Scheduler *Scheduler

	session     uuid.UUID
	logPath     string
	descriptors Descriptors
	teeCmd      *exec.Cmd
	pipeWriter  *os.File
	teeStopped  bool
	logger      logger.Logger
}

// ScopeOptions configures scope entry.
type ScopeOptions struct {
	// ProjectDir names the project whose leaf becomes the log file name.
	// Defaults to the current working directory.
	ProjectDir string

	// LogPath overrides the time-bucketed platform log destination.
	LogPath string

	// TeeBinary overrides the helper executable. Defaults to ember-tee
	// next to the running binary, then in PATH.
	TeeBinary string

	// Descriptors overrides the fd-table capability (tests only).
	Descriptors Descriptors

	Logger logger.Logger
}

// EnterScope saves the process-wide output descriptors, launches the tee
// helper and redirects stdout and stderr into its pipe. Every child the
// scheduler spawns afterwards inherits the redirection, so compiler output
// reaches both the terminal and the build log.
func EnterScope(s *Scheduler, opts ScopeOptions) (*Scope, error) {
	if !scopeActive.CompareAndSwap(false, true) {
		return nil, ErrScopeActive
	}

	scope, err := enterScope(s, opts)
	if err != nil {
		scopeActive.Store(false)
		return nil, err
	}
	return scope, nil
}

func enterScope(s *Scheduler, opts ScopeOptions) (*Scope, error) {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir, _ = os.Getwd()
	}
	logPath := opts.LogPath
	if logPath == "" {
		logPath = destinations.LogPath(projectDir, time.Now())
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	descriptors := opts.Descriptors
	if descriptors == nil {
		descriptors = SystemDescriptors()
	}

	scope := &Scope{
		Scheduler:   s,
		session:     uuid.New(),
		logPath:     logPath,
		descriptors: descriptors,
		logger:      log.WithComponent("scope"),
	}

	if err := descriptors.Save(); err != nil {
		return nil, err
	}

	pipeReader, pipeWriter, err := os.Pipe()
	if err != nil {
		_ = descriptors.Restore()
		return nil, fmt.Errorf("failed to create tee pipe: %w", err)
	}
	scope.pipeWriter = pipeWriter

	teeCmd := exec.Command(teeBinary(opts.TeeBinary), logPath)
	teeCmd.Stdin = pipeReader
	teeCmd.Stdout = descriptors.SavedStdout()
	teeCmd.Stderr = descriptors.SavedStderr()
	if err := teeCmd.Start(); err != nil {
		_ = pipeReader.Close()
		_ = pipeWriter.Close()
		_ = descriptors.Restore()
		return nil, fmt.Errorf("failed to start tee helper: %w", err)
	}
	// The helper holds its own handle now.
	_ = pipeReader.Close()
	scope.teeCmd = teeCmd

	if err := descriptors.Redirect(pipeWriter); err != nil {
		scope.stopTee()
		_ = descriptors.Restore()
		return nil, err
	}

	s.RegisterShutdownHandler(scope.stopTee)

	scope.logger.Debug("scheduler scope entered",
		logger.WithField("session", scope.session),
		logger.WithField("log", logPath))
	return scope, nil
}

// Close drains all remaining work, shuts the scheduler down, and restores
// the original output descriptors. runErr is the error (or nil) from the
// caller's batch; anything other than an invalid submission converts into
// the standardized subcommand-failure report with its dedicated exit code.
func (sc *Scope) Close(runErr error) error {
	for range sc.Scheduler.AsCompleted() {
	}
	sc.Scheduler.Shutdown()
	sc.stopTee()
	if err := sc.descriptors.Restore(); err != nil {
		sc.logger.Error("failed to restore output descriptors", logger.WithField("error", err))
	}
	scopeActive.Store(false)

	if launchErr := sc.Scheduler.Err(); launchErr != nil {
		return launchErr
	}
	if runErr != nil && !errors.Is(runErr, ErrEmptySubcommand) {
		return ReportSubcommandFailure(runErr)
	}
	return runErr
}

// ReportSubcommandFailure prints the standardized failure report and
// returns the matching exit error. Nonzero child exits are ordinarily just
// data from AsCompleted; callers use this helper when they decide a batch
// failure is fatal after all.
func ReportSubcommandFailure(cause error) *types.ExitError {
	fmt.Fprint(os.Stderr, subcommandFailureMessage)
	return types.NewExitError(types.ExitSubcommandFailed, cause)
}

// LogPath returns the build log this scope writes through the tee helper.
func (sc *Scope) LogPath() string {
	return sc.logPath
}

// Session identifies this scope in diagnostics.
func (sc *Scope) Session() uuid.UUID {
	return sc.session
}

// stopTee sends the sentinel down the pipe and waits for the helper to
// flush and exit. Idempotent: the scheduler's shutdown handler and Close
// may both reach it.
func (sc *Scope) stopTee() {
	if sc.teeStopped {
		return
	}
	sc.teeStopped = true
	if sc.pipeWriter != nil {
		_, _ = sc.pipeWriter.WriteString(tee.Sentinel)
		_ = sc.pipeWriter.Close()
	}
	if sc.teeCmd != nil {
		_ = sc.teeCmd.Wait()
	}
}

// teeBinary resolves the helper executable: an explicit override, then
// ember-tee beside the running binary, then PATH.
func teeBinary(override string) string {
	if override != "" {
		return override
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "ember-tee")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	if path, err := exec.LookPath("ember-tee"); err == nil {
		return path
	}
	return "ember-tee"
}
