package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ember-build/ember/pkg/cache"
	"github.com/ember-build/ember/pkg/logger"
	"github.com/ember-build/ember/pkg/notifier"
	"github.com/ember-build/ember/pkg/scheduler"
	"github.com/ember-build/ember/pkg/types"
)

func newBuildCmd() *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the project's build subcommands",
		Long: `Build reads the effective configuration from the signed cache (regenerating
it when stale), then runs every step under the concurrency ceiling. Child
output is echoed to the terminal and captured in the build log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(verbosity)
			return runBuild(cmd.Context(), log, notify)
		},
	}

	cmd.Flags().BoolVar(&notify, "notify", false, "raise a desktop notification when the batch finishes")
	return cmd
}

func runBuild(ctx context.Context, log logger.Logger, notify bool) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return err
	}

	settings, err := loadSettings(ctx, log)
	if err != nil {
		return err
	}
	subcommands, err := buildSteps(settings)
	if err != nil {
		return err
	}
	if len(subcommands) == 0 {
		log.Info("nothing to build: no build steps declared")
		return nil
	}

	sched := scheduler.New(scheduler.Options{
		Total:     len(subcommands),
		Jobs:      jobs,
		LoadLimit: loadLimit,
		Quiet:     quiet,
		Logger:    log,
	})
	scope, err := scheduler.EnterScope(sched, scheduler.ScopeOptions{
		ProjectDir: projectDir,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	started := time.Now()
	failures := 0
	runErr := func() error {
		for _, subcommand := range subcommands {
			if err := sched.Submit(subcommand); err != nil {
				return err
			}
		}
		for pid, code := range sched.AsCompleted() {
			if code != 0 {
				failures++
				log.Warn("subcommand exited nonzero",
					logger.WithField("pid", pid),
					logger.WithField("code", code))
			}
		}
		return sched.Err()
	}()

	if err := scope.Close(runErr); err != nil {
		return err
	}

	batch := notifier.New(notify, log)
	if failures > 0 {
		batch.NotifyFailure(projectDir, failures)
		return scheduler.ReportSubcommandFailure(
			fmt.Errorf("%d of %d subcommands failed", failures, len(subcommands)))
	}
	batch.NotifySuccess(projectDir, len(subcommands), time.Since(started))
	log.Info("build complete",
		logger.WithField("subcommands", len(subcommands)),
		logger.WithField("elapsed", time.Since(started).Round(time.Millisecond)))
	return nil
}

// loadSettings opens the signed cache for the current project and reads the
// effective configuration out of it.
func loadSettings(ctx context.Context, log logger.Logger) (types.Settings, error) {
	c := cache.New(cache.Options{Logger: log})
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	defer c.Close()

	var settings types.Settings
	if err := c.Read(ctx, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// buildSteps extracts the declared subcommands from the merged settings:
//
//	[build]
//	steps = [["cc", "-c", "main.c"], ["cc", "-o", "app", "main.o"]]
func buildSteps(settings types.Settings) ([]types.Subcommand, error) {
	build, ok := settings["build"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawSteps, ok := build["steps"].([]interface{})
	if !ok {
		return nil, nil
	}

	steps := make([]types.Subcommand, 0, len(rawSteps))
	for i, rawStep := range rawSteps {
		argv, ok := rawStep.([]interface{})
		if !ok {
			return nil, fmt.Errorf("build.steps[%d] is not an argument list", i)
		}
		subcommand := make(types.Subcommand, 0, len(argv))
		for _, arg := range argv {
			s, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("build.steps[%d] contains a non-string argument", i)
			}
			subcommand = append(subcommand, s)
		}
		if subcommand.Empty() {
			return nil, fmt.Errorf("build.steps[%d] is empty", i)
		}
		steps = append(steps, subcommand)
	}
	return steps, nil
}
