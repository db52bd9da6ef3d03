// Package config loads and merges the declaration sources into the
// effective build settings.
//
// Up to four files contribute settings, in fixed precedence order: the
// project manifest, the project patch override, the user preferences and
// the system environment. Merging is first-seen-wins: a key set by a
// higher-precedence source is never overwritten by a lower-precedence one,
// and shadowed keys are dropped without a diagnostic.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ember-build/ember/pkg/logger"
	"github.com/ember-build/ember/pkg/types"
)

// ErrManifestUnavailable indicates the project manifest does not exist, so
// no configuration can be derived at all.
var ErrManifestUnavailable = errors.New("can't open Ember.toml: no such file or directory")

// Loader reads declaration sources and produces the merged settings.
type Loader struct {
	sources []types.Source
	logger  logger.Logger
}

// NewLoader creates a loader over the given sources, which must already be
// in precedence order.
func NewLoader(sources []types.Source, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{sources: sources, logger: log.WithComponent("config")}
}

// Sources returns the declaration sources in precedence order.
func (l *Loader) Sources() []types.Source {
	return l.sources
}

// Load parses every existing declaration source concurrently and merges the
// results in precedence order. The project manifest is mandatory; its
// absence is reported with the dedicated exit code.
func (l *Loader) Load(ctx context.Context) (types.Settings, error) {
	if len(l.sources) == 0 || !exists(l.sources[0].Path) {
		return nil, types.NewExitError(types.ExitManifestUnavailable, ErrManifestUnavailable)
	}

	parsed := make([]types.Settings, len(l.sources))
	g, _ := errgroup.WithContext(ctx)
	for i, source := range l.sources {
		if !exists(source.Path) {
			l.logger.Debug("declaration source absent, skipping",
				logger.WithField("kind", source.Kind),
				logger.WithField("path", source.Path))
			continue
		}
		g.Go(func() error {
			settings, err := parseSource(source.Path)
			if err != nil {
				return fmt.Errorf("failed to parse %s declaration %s: %w", source.Kind, source.Path, err)
			}
			parsed[i] = settings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(types.Settings)
	for _, settings := range parsed {
		for key, value := range settings {
			if _, seen := merged[key]; seen {
				continue
			}
			merged[key] = value
		}
	}
	return merged, nil
}

// parseSource reads one declaration file. The sources are TOML regardless
// of platform, so the type is pinned instead of inferred from the path.
func parseSource(path string) (types.Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
