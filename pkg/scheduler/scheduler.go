// Package scheduler runs build subcommands under bounded, load-aware
// parallelism.
//
// The coordinating logic is single-threaded: real parallelism comes from
// the spawned compiler and linker processes, not in-process workers. Each
// child gets one reaper goroutine whose only job is to wait on it and
// publish the result, so the scheduler never reaps a child it does not
// track even when the host process has unrelated children.
package scheduler

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ember-build/ember/pkg/logger"
	"github.com/ember-build/ember/pkg/types"
)

// ErrEmptySubcommand rejects a submission with no executable.
var ErrEmptySubcommand = errors.New("subcommand must name an executable")

// completion is one reaped child.
type completion struct {
	pid  int
	code int
}

// Scheduler is the concurrent process pool executing build subcommands.
// It is not safe for concurrent use; one goroutine drives the whole batch.
type Scheduler struct {
	total     int
	jobs      int
	loadLimit float64
	quiet     bool
	stdout    io.Writer
	logger    logger.Logger

	// loadSample is swapped out by tests to force throttling.
	loadSample func() float64

	pending     []types.Subcommand
	running     map[int]*exec.Cmd
	spawned     int
	completions chan completion
	reapers     sync.WaitGroup

	shutdownHandlers []func()
	err              error
}

// Options configures a Scheduler.
type Options struct {
	// Total is the fixed number of subcommands the batch will run, used
	// for the [n/total] counter lines.
	Total int

	// Jobs caps parallel children. Defaults to the logical core count.
	Jobs int

	// LoadLimit is the 1-minute load average above which the scheduler
	// drops to a single child at a time. Defaults to Jobs.
	LoadLimit float64

	// Quiet suppresses the progress lines on the terminal. Child output
	// is still captured in the log.
	Quiet bool

	// Stdout receives the progress lines; defaults to the process stdout,
	// which a scope has usually redirected into the tee pipe.
	Stdout io.Writer

	Logger logger.Logger

	// LoadSample overrides the load average source (tests only).
	LoadSample func() float64
}

// New creates a scheduler for a batch of Total subcommands.
func New(opts Options) *Scheduler {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = DefaultJobs()
	}
	loadLimit := opts.LoadLimit
	if loadLimit <= 0 {
		loadLimit = float64(jobs)
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	sample := opts.LoadSample
	if sample == nil {
		sample = recentLoadAverage
	}
	capacity := opts.Total
	if capacity < 1 {
		capacity = 16
	}
	return &Scheduler{
		total:       opts.Total,
		jobs:        jobs,
		loadLimit:   loadLimit,
		quiet:       opts.Quiet,
		stdout:      stdout,
		logger:      log.WithComponent("scheduler"),
		loadSample:  sample,
		running:     make(map[int]*exec.Cmd),
		completions: make(chan completion, capacity),
	}
}

// Submit enqueues a subcommand at the tail of the pending queue. Execution
// starts on the next Start call.
func (s *Scheduler) Submit(subcommand types.Subcommand) error {
	if subcommand.Empty() {
		return ErrEmptySubcommand
	}
	s.pending = append(s.pending, subcommand)
	return nil
}

// Start spawns children to fill the vacant slots under the current
// concurrency ceiling. The ceiling collapses to one child while the host
// is already under heavy load: racing a loaded machine only hurts both
// wall-clock time and interactive responsiveness.
func (s *Scheduler) Start() error {
	ceiling := s.jobs
	if s.loadSample() > s.loadLimit {
		ceiling = 1
	}

	vacant := ceiling - len(s.running)
	additional := min(vacant, len(s.pending))
	for i := 0; i < additional; i++ {
		subcommand := s.pending[0]
		s.pending = s.pending[1:]
		s.spawned++
		if !s.quiet {
			fmt.Fprintf(s.stdout, "[%d/%d] %s\n", s.spawned, s.total, subcommand)
		}
		if err := s.spawn(subcommand); err != nil {
			fmt.Fprintf(os.Stderr, "ember: subcommand could not be started: %v\n", err)
			s.err = types.NewExitError(types.ExitSubcommandLaunch, err)
			s.Shutdown()
			return s.err
		}
	}
	return nil
}

// spawn launches one child inheriting the process-wide (possibly
// redirected) output descriptors and dedicates a reaper goroutine to it.
func (s *Scheduler) spawn(subcommand types.Subcommand) error {
	cmd := exec.Command(subcommand[0], subcommand[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	pid := cmd.Process.Pid
	s.running[pid] = cmd
	s.logger.Debug("spawned subcommand",
		logger.WithField("pid", pid),
		logger.WithField("argv", subcommand.String()))

	s.reapers.Add(1)
	go func() {
		defer s.reapers.Done()
		_ = cmd.Wait()
		s.completions <- completion{pid: pid, code: normalizeExitCode(cmd.ProcessState)}
	}()
	return nil
}

// AsCompleted returns a lazy, finite, non-restartable sequence of
// (pid, exit code) pairs. Each pull first tops up the pool, then blocks
// until one of this scheduler's children exits. Completion order is
// whatever the children's own runtimes dictate; only spawn order is FIFO.
func (s *Scheduler) AsCompleted() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for {
			if err := s.Start(); err != nil {
				return
			}
			if s.IsWorkComplete() {
				return
			}
			done := <-s.completions
			delete(s.running, done.pid)
			if !yield(done.pid, done.code) {
				return
			}
		}
	}
}

// Progress returns (spawned, total). Spawned never decreases.
func (s *Scheduler) Progress() types.Progress {
	return types.Progress{Spawned: s.spawned, Total: s.total}
}

// IsWorkComplete reports whether nothing is queued and nothing is running.
func (s *Scheduler) IsWorkComplete() bool {
	return len(s.pending) == 0 && len(s.running) == 0
}

// QueuedCount returns the number of subcommands awaiting a slot.
func (s *Scheduler) QueuedCount() int {
	return len(s.pending)
}

// RunningCount returns the number of live children.
func (s *Scheduler) RunningCount() int {
	return len(s.running)
}

// Err returns the fatal scheduler error, if any (a failed launch).
func (s *Scheduler) Err() error {
	return s.err
}

// RegisterShutdownHandler adds a handler run at the start of Shutdown,
// before the children are terminated. The scope uses this to stop the tee
// helper with the sentinel.
func (s *Scheduler) RegisterShutdownHandler(handler func()) {
	s.shutdownHandlers = append(s.shutdownHandlers, handler)
}

// terminationGrace is how long children get to honor SIGTERM before being
// killed outright.
var terminationGrace = 2 * time.Second

// Shutdown discards all pending subcommands, runs the registered handlers,
// and terminates and reaps every running child. The scheduler is empty
// afterwards and can only report state, not run more work.
func (s *Scheduler) Shutdown() {
	s.pending = nil

	for i := len(s.shutdownHandlers) - 1; i >= 0; i-- {
		s.shutdownHandlers[i]()
	}
	s.shutdownHandlers = nil

	for pid, cmd := range s.running {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = cmd.Process.Kill()
		}
		s.logger.Debug("terminating subcommand", logger.WithField("pid", pid))
	}

	deadline := time.After(terminationGrace)
	for len(s.running) > 0 {
		select {
		case done := <-s.completions:
			delete(s.running, done.pid)
		case <-deadline:
			for _, cmd := range s.running {
				_ = cmd.Process.Kill()
			}
		}
	}
	s.reapers.Wait()

	// Drop any completions that raced the drain.
	for {
		select {
		case <-s.completions:
		default:
			return
		}
	}
}
