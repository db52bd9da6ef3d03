// Package notifier raises desktop notifications for finished build batches
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/ember-build/ember/pkg/logger"
)

// BatchNotifier reports batch outcomes to the desktop so long builds can
// run unattended.
type BatchNotifier struct {
	enabled bool
	logger  logger.Logger
}

// New creates a notifier; a disabled one swallows every call.
func New(enabled bool, log logger.Logger) *BatchNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &BatchNotifier{enabled: enabled, logger: log.WithComponent("notifier")}
}

// NotifySuccess reports a fully successful batch.
func (n *BatchNotifier) NotifySuccess(project string, count int, duration time.Duration) {
	n.send("Build succeeded",
		fmt.Sprintf("%s: %d subcommands in %s", project, count, formatDuration(duration)))
}

// NotifyFailure reports a batch with at least one failing subcommand.
func (n *BatchNotifier) NotifyFailure(project string, failures int) {
	n.send("Build failed",
		fmt.Sprintf("%s: %d subcommands exited nonzero", project, failures))
}

func (n *BatchNotifier) send(title, message string) {
	if !n.enabled {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		// A missing notification daemon should never fail a build.
		n.logger.Debug("notification failed", logger.WithField("error", err))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
