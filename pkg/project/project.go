// Package project scaffolds new Ember projects
package project

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/ember-build/ember/pkg/destinations"
)

// Manifest is the initial Ember.toml layout.
type Manifest struct {
	Package Package `toml:"package"`
}

// Package holds the project metadata block.
type Package struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	License     string   `toml:"license"`
	Description string   `toml:"description"`
	Authors     []string `toml:"authors"`
}

// Author detects the current user's identity for the authors field,
// preferring the git identity over the bare OS account name.
func Author() string {
	name := gitConfig("user.name")
	email := gitConfig("user.email")
	if name != "" && email != "" {
		return fmt.Sprintf("%s <%s>", name, email)
	}
	if name != "" {
		return name
	}
	return destinations.Username()
}

func gitConfig(key string) string {
	out, err := exec.Command("git", "config", "--get", key).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// DefaultManifest builds the template written into a fresh project.
func DefaultManifest(name string, authors []string) Manifest {
	return Manifest{
		Package: Package{
			Name:        name,
			Version:     "0.0.1-rc",
			License:     "Your project license: MIT/Apache/GPL/etc.",
			Description: "Your project description here",
			Authors:     authors,
		},
	}
}

// Init creates a new project directory with its manifest.
func Init(name string) error {
	if err := os.MkdirAll(name, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	manifest := DefaultManifest(name, []string{Author()})
	encoded, err := toml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	manifestPath := filepath.Join(name, destinations.ManifestFile)
	if err := os.WriteFile(manifestPath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", manifestPath, err)
	}
	return nil
}
