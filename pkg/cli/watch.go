package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ember-build/ember/pkg/destinations"
	"github.com/ember-build/ember/pkg/logger"
	"github.com/ember-build/ember/pkg/types"
)

// settleDelay coalesces editor write bursts into one rebuild.
const settleDelay = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever watched files change",
		Long: `Watch runs a build, then observes the declaration files plus any paths
declared under watch.paths and reruns the build on every change until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(verbosity)
			return runWatch(cmd.Context(), log, notify)
		},
	}

	cmd.Flags().BoolVar(&notify, "notify", false, "raise a desktop notification when each batch finishes")
	return cmd
}

func runWatch(ctx context.Context, log logger.Logger, notify bool) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchDeclarations(watcher, projectDir); err != nil {
		return err
	}
	if err := watchDeclaredPaths(ctx, watcher, log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One build up front; later failures keep the watch alive.
	if err := runBuild(ctx, log, notify); err != nil {
		log.Warn("initial build failed", logger.WithField("error", err))
	}

	var settle *time.Timer
	rebuild := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			log.Info("watch interrupted")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("change detected", logger.WithField("path", event.Name))
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(settleDelay, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", logger.WithField("error", err))
		case <-rebuild:
			if err := runBuild(ctx, log, notify); err != nil {
				log.Warn("build failed", logger.WithField("error", err))
			}
		}
	}
}

// watchDeclarations registers the project-local declaration files.
func watchDeclarations(watcher *fsnotify.Watcher, projectDir string) error {
	for _, source := range destinations.Sources(projectDir) {
		if source.Kind != types.SourceProject && source.Kind != types.SourcePatch {
			continue
		}
		if _, err := os.Stat(source.Path); err != nil {
			continue
		}
		if err := watcher.Add(source.Path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", source.Path, err)
		}
	}
	return nil
}

// watchDeclaredPaths registers the watch.paths directories from the merged
// settings.
func watchDeclaredPaths(ctx context.Context, watcher *fsnotify.Watcher, log logger.Logger) error {
	settings, err := loadSettings(ctx, log)
	if err != nil {
		return err
	}
	watch, ok := settings["watch"].(map[string]interface{})
	if !ok {
		return nil
	}
	paths, ok := watch["paths"].([]interface{})
	if !ok {
		return nil
	}
	for _, raw := range paths {
		path, ok := raw.(string)
		if !ok {
			continue
		}
		if err := watcher.Add(path); err != nil {
			log.Warn("failed to watch declared path",
				logger.WithField("path", path),
				logger.WithField("error", err))
		}
	}
	return nil
}
