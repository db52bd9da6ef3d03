// Package types provides core types shared across the Ember build orchestrator
package types

import (
	"fmt"
	"strings"
)

// Subcommand is one external build tool invocation: element 0 is the
// executable (preferably an absolute path), the rest are its arguments.
// A Subcommand is immutable once submitted to the scheduler.
type Subcommand []string

// String renders the subcommand the way it is echoed to the build log.
func (s Subcommand) String() string {
	return strings.Join(s, " ")
}

// Empty reports whether the subcommand has no executable.
func (s Subcommand) Empty() bool {
	return len(s) == 0
}

// Progress is a snapshot of how far a batch has advanced: Spawned counts
// processes started so far and never decreases; Total is the fixed target
// used for the [n/total] counter lines.
type Progress struct {
	Spawned int
	Total   int
}

func (p Progress) String() string {
	return fmt.Sprintf("[%d/%d]", p.Spawned, p.Total)
}

// SourceKind identifies one of the declaration sources contributing build
// settings, in precedence order.
type SourceKind string

const (
	SourceProject     SourceKind = "project"
	SourcePatch       SourceKind = "patch"
	SourcePreferences SourceKind = "preferences"
	SourceEnvironment SourceKind = "environment"
)

// Source is one declaration file that may contribute build settings.
type Source struct {
	Kind SourceKind
	Path string
}

// Settings is the effective build configuration after the precedence merge.
type Settings map[string]interface{}
