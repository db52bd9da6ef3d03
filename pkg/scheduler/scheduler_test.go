package scheduler_test

import (
	"bytes"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-build/ember/pkg/scheduler"
	"github.com/ember-build/ember/pkg/types"
)

func shell(script string) types.Subcommand {
	return types.Subcommand{"/bin/sh", "-c", script}
}

func TestSubmit_RejectsEmptySubcommand(t *testing.T) {
	s := scheduler.New(scheduler.Options{Total: 1})
	assert.ErrorIs(t, s.Submit(types.Subcommand{}), scheduler.ErrEmptySubcommand)
}

func TestAsCompleted_YieldsEveryPair(t *testing.T) {
	var progress bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      3,
		Jobs:       2,
		Stdout:     &progress,
		LoadSample: func() float64 { return 0 },
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Submit(shell("exit 0")))
	}

	pairs := 0
	for pid, code := range s.AsCompleted() {
		assert.Positive(t, pid)
		assert.Equal(t, 0, code)
		pairs++
	}

	assert.Equal(t, 3, pairs)
	assert.Equal(t, types.Progress{Spawned: 3, Total: 3}, s.Progress())
	assert.True(t, s.IsWorkComplete())
	assert.NoError(t, s.Err())

	lines := strings.Split(strings.TrimSpace(progress.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[1/3] /bin/sh -c exit 0", lines[0])
	assert.Equal(t, "[3/3] /bin/sh -c exit 0", lines[2])
}

func TestAsCompleted_NormalizesExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "exit 0", 0},
		{"plain failure", "exit 7", 7},
		{"high failure", "exit 200", 200},
		{"killed", "kill -KILL $$", 128 + int(syscall.SIGKILL)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var discard bytes.Buffer
			s := scheduler.New(scheduler.Options{
				Total:      1,
				Stdout:     &discard,
				LoadSample: func() float64 { return 0 },
			})
			require.NoError(t, s.Submit(shell(tt.script)))

			codes := make([]int, 0, 1)
			for _, code := range s.AsCompleted() {
				codes = append(codes, code)
			}
			require.Len(t, codes, 1)
			assert.Equal(t, tt.want, codes[0])
		})
	}
}

func TestStart_ThrottlesUnderLoad(t *testing.T) {
	var discard bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      5,
		Jobs:       8,
		LoadLimit:  8,
		Stdout:     &discard,
		LoadSample: func() float64 { return 100 },
	})
	defer s.Shutdown()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Submit(shell("sleep 5")))
	}
	require.NoError(t, s.Start())

	assert.LessOrEqual(t, s.RunningCount(), 1)
	assert.Equal(t, 4, s.QueuedCount())
}

func TestStart_FillsVacantSlots(t *testing.T) {
	var discard bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      5,
		Jobs:       3,
		Stdout:     &discard,
		LoadSample: func() float64 { return 0 },
	})
	defer s.Shutdown()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Submit(shell("sleep 5")))
	}
	require.NoError(t, s.Start())

	assert.Equal(t, 3, s.RunningCount())
	assert.Equal(t, 2, s.QueuedCount())
	assert.False(t, s.IsWorkComplete())
}

func TestStart_LaunchFailureIsFatal(t *testing.T) {
	var discard bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      1,
		Stdout:     &discard,
		LoadSample: func() float64 { return 0 },
	})
	require.NoError(t, s.Submit(types.Subcommand{"/nonexistent/ember-test-binary"}))

	err := s.Start()
	require.Error(t, err)

	var exitErr *types.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, types.ExitSubcommandLaunch, exitErr.Code)

	// The failed launch shut the scheduler down.
	assert.True(t, s.IsWorkComplete())
	assert.ErrorIs(t, s.Err(), exitErr.Err)
}

func TestShutdown_TerminatesRunningChildren(t *testing.T) {
	var discard bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      2,
		Jobs:       2,
		Stdout:     &discard,
		LoadSample: func() float64 { return 0 },
	})
	require.NoError(t, s.Submit(shell("sleep 60")))
	require.NoError(t, s.Submit(shell("sleep 60")))
	require.NoError(t, s.Start())
	require.Equal(t, 2, s.RunningCount())

	start := time.Now()
	s.Shutdown()

	assert.True(t, s.IsWorkComplete())
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestShutdown_DiscardsPending(t *testing.T) {
	var discard bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      3,
		Jobs:       1,
		Stdout:     &discard,
		LoadSample: func() float64 { return 0 },
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Submit(shell("sleep 60")))
	}
	require.NoError(t, s.Start())

	s.Shutdown()
	assert.Zero(t, s.QueuedCount())
	assert.Zero(t, s.RunningCount())

	// A drained scheduler's sequence is empty.
	for range s.AsCompleted() {
		t.Fatal("no pairs expected after shutdown")
	}
}

func TestQuiet_SuppressesProgressLines(t *testing.T) {
	var progress bytes.Buffer
	s := scheduler.New(scheduler.Options{
		Total:      1,
		Quiet:      true,
		Stdout:     &progress,
		LoadSample: func() float64 { return 0 },
	})
	require.NoError(t, s.Submit(shell("exit 0")))
	for range s.AsCompleted() {
	}
	assert.Empty(t, progress.String())
}
