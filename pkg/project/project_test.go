package project_test

import (
	"os"
	"path/filepath"
	"testing"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-build/ember/pkg/project"
)

func TestInit_WritesManifest(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "wisengine")

	require.NoError(t, project.Init(name))

	raw, err := os.ReadFile(filepath.Join(name, "Ember.toml"))
	require.NoError(t, err)

	var manifest project.Manifest
	require.NoError(t, toml.Unmarshal(raw, &manifest))
	assert.Equal(t, name, manifest.Package.Name)
	assert.Equal(t, "0.0.1-rc", manifest.Package.Version)
	assert.Len(t, manifest.Package.Authors, 1)
	assert.NotEmpty(t, manifest.Package.Authors[0])
}

func TestDefaultManifest_Template(t *testing.T) {
	manifest := project.DefaultManifest("demo", []string{"Sophia <sophia@example.com>"})
	assert.Equal(t, "demo", manifest.Package.Name)
	assert.Equal(t, "0.0.1-rc", manifest.Package.Version)
	assert.Contains(t, manifest.Package.License, "MIT")
	assert.Equal(t, []string{"Sophia <sophia@example.com>"}, manifest.Package.Authors)
}
