package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-build/ember/pkg/cache"
	"github.com/ember-build/ember/pkg/config"
	"github.com/ember-build/ember/pkg/crypto"
	"github.com/ember-build/ember/pkg/destinations"
	"github.com/ember-build/ember/pkg/keystore"
	"github.com/ember-build/ember/pkg/types"
)

// The suite shares one RSA-4096 pair: generation dominates test time.
var (
	fixtureOnce       sync.Once
	fixturePublicPath string
	fixturePrivatePEM string
	fixtureErr        error
)

func fixtureKeys(t *testing.T) (publicKeyPath, privatePEM string) {
	t.Helper()
	fixtureOnce.Do(func() {
		dir, err := os.MkdirTemp("", "ember-cache-test")
		if err != nil {
			fixtureErr = err
			return
		}
		fixturePublicPath = filepath.Join(dir, "ember.public-key.pem")
		_, privateKey, err := crypto.GenerateKeyPair(fixturePublicPath)
		if err != nil {
			fixtureErr = err
			return
		}
		fixturePrivatePEM, fixtureErr = crypto.EncodePrivateKey(privateKey)
	})
	require.NoError(t, fixtureErr)
	return fixturePublicPath, fixturePrivatePEM
}

const manifestBody = `[package]
name = "demo"

[build]
steps = [["true"]]
`

// newTestCache wires a cache against a throwaway project with the shared
// fixture keys seeded into an in-memory keystore.
func newTestCache(t *testing.T, clear bool) (*cache.Cache, string) {
	t.Helper()
	publicKeyPath, privatePEM := fixtureKeys(t)

	projectDir := t.TempDir()
	manifestPath := filepath.Join(projectDir, destinations.ManifestFile)
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifestBody), 0o644))

	keys := keystore.NewMemory()
	require.NoError(t, keys.Set(destinations.CacheNamespace(), destinations.Username(), privatePEM))

	sources := []types.Source{
		{Kind: types.SourceProject, Path: manifestPath},
		{Kind: types.SourcePatch, Path: filepath.Join(projectDir, destinations.PatchFile)},
	}

	c := cache.New(cache.Options{
		ProjectDir:    projectDir,
		Clear:         clear,
		KeyStore:      keys,
		Loader:        config.NewLoader(sources, nil),
		CachePath:     filepath.Join(t.TempDir(), "cachefile"),
		PublicKeyPath: publicKeyPath,
	})
	return c, projectDir
}

func TestOpen_RegeneratesMissingCacheAndSigns(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, false)

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Close())

	contents, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	require.Greater(t, len(contents), crypto.SignatureSize)

	publicKey, err := os.ReadFile(fixturePublicPath)
	require.NoError(t, err)
	assert.True(t, crypto.Verify(
		contents[crypto.SignatureSize:],
		contents[:crypto.SignatureSize],
		publicKey,
	))
}

func TestRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, false)
	require.NoError(t, c.Open(ctx))
	defer c.Close()

	written := map[string]string{"toolchain": "clang", "profile": "release"}
	require.NoError(t, c.Write(written))
	require.NoError(t, c.Sync())

	var got map[string]string
	require.NoError(t, c.Read(ctx, &got))
	assert.Equal(t, written, got)
}

func TestAppend_OffsetLaw(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, false)
	require.NoError(t, c.Open(ctx))
	defer c.Close()

	baseline := map[string]string{"stage": "compile"}
	require.NoError(t, c.Write(baseline))
	require.NoError(t, c.Sync())
	baselineSize := c.Size()

	appended := map[string]string{"stage": "link", "artifact": "app"}
	appendedLen, err := c.Append(appended)
	require.NoError(t, err)
	require.NoError(t, c.Sync())

	var gotBaseline map[string]string
	require.NoError(t, c.ReadRange(ctx, &gotBaseline, 0, baselineSize))
	assert.Equal(t, baseline, gotBaseline)

	var gotAppended map[string]string
	require.NoError(t, c.ReadRange(ctx, &gotAppended, baselineSize, appendedLen))
	assert.Equal(t, appended, gotAppended)
}

func TestRead_RequiresOpen(t *testing.T) {
	c, _ := newTestCache(t, false)

	var out map[string]string
	err := c.Read(context.Background(), &out)
	assert.ErrorIs(t, err, cache.ErrNotOpen)
}

func TestOpen_RegeneratesWhenSourceIsNewer(t *testing.T) {
	ctx := context.Background()
	c, projectDir := newTestCache(t, false)
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Close())

	// Rewrite the manifest and push its mtime past the cache file's.
	manifestPath := filepath.Join(projectDir, destinations.ManifestFile)
	updated := manifestBody + "\n[custom]\nflag = \"set\"\n"
	require.NoError(t, os.WriteFile(manifestPath, []byte(updated), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(manifestPath, future, future))

	reopened := cloneCache(t, c, projectDir)
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	var settings types.Settings
	require.NoError(t, reopened.Read(ctx, &settings))
	assert.Contains(t, settings, "custom")
}

func TestOpen_RegeneratesOnTamper(t *testing.T) {
	ctx := context.Background()
	c, projectDir := newTestCache(t, false)
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Close())

	contents, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	contents[len(contents)-1] ^= 0xff
	require.NoError(t, os.WriteFile(c.Path(), contents, 0o600))

	reopened := cloneCache(t, c, projectDir)
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	var settings types.Settings
	require.NoError(t, reopened.Read(ctx, &settings))
	assert.Contains(t, settings, "package")
	assert.True(t, reopened.IsCached(ctx))
}

func TestIsCached_DeletesUnverifiablePayload(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, false)
	require.NoError(t, c.Open(ctx))

	// Appending without syncing leaves the signature stale.
	_, err := c.Append(map[string]string{"extra": "data"})
	require.NoError(t, err)

	assert.False(t, c.IsCached(ctx))
	_, statErr := os.Stat(c.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_MissingManifestIsFatal(t *testing.T) {
	c, projectDir := newTestCache(t, false)
	require.NoError(t, os.Remove(filepath.Join(projectDir, destinations.ManifestFile)))

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrManifestUnavailable)

	var exitErr *types.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, types.ExitManifestUnavailable, exitErr.Code)
}

func TestClose_WithoutOpenTouchesNothing(t *testing.T) {
	c, _ := newTestCache(t, false)

	assert.ErrorIs(t, c.Sync(), cache.ErrNotOpen)
	require.NoError(t, c.Close())
	assert.NoFileExists(t, c.Path())
}

func TestClose_AfterFailedOpenWritesNothing(t *testing.T) {
	ctx := context.Background()
	c, projectDir := newTestCache(t, false)
	require.NoError(t, os.Remove(filepath.Join(projectDir, destinations.ManifestFile)))

	// The Open failure swallowed inside IsCached must not arm a later
	// Close into signing an empty payload for a non-project directory.
	assert.False(t, c.IsCached(ctx))
	require.NoError(t, c.Close())
	assert.NoFileExists(t, c.Path())
	assert.ErrorIs(t, c.Sync(), cache.ErrNotOpen)
}

func TestOpen_ClearLeavesPayloadEmpty(t *testing.T) {
	ctx := context.Background()
	c, projectDir := newTestCache(t, false)
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Close())

	cleared := cloneCacheWithClear(t, c, projectDir)
	require.NoError(t, cleared.Open(ctx))
	defer cleared.Close()
	assert.Zero(t, cleared.Size())
}

func TestSync_RecoversFromKeyStoreMiss(t *testing.T) {
	ctx := context.Background()
	publicKeyPath := filepath.Join(t.TempDir(), "ember.public-key.pem")

	projectDir := t.TempDir()
	manifestPath := filepath.Join(projectDir, destinations.ManifestFile)
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifestBody), 0o644))

	// Empty keystore and no public key: Open must mint a pair on its own.
	keys := keystore.NewMemory()
	c := cache.New(cache.Options{
		ProjectDir: projectDir,
		KeyStore:   keys,
		Loader: config.NewLoader([]types.Source{
			{Kind: types.SourceProject, Path: manifestPath},
		}, nil),
		CachePath:     filepath.Join(t.TempDir(), "cachefile"),
		PublicKeyPath: publicKeyPath,
	})
	require.NoError(t, c.Open(ctx))

	// Losing the secret must be repaired transparently on the next sync.
	require.NoError(t, keys.Delete(destinations.CacheNamespace(), destinations.Username()))
	require.NoError(t, c.Sync())

	_, err := keys.Get(destinations.CacheNamespace(), destinations.Username())
	assert.NoError(t, err)
	require.NoError(t, c.Close())
}

// cloneCache builds a second handle over the same paths, simulating a new
// invocation against the same project.
func cloneCache(t *testing.T, prev *cache.Cache, projectDir string) *cache.Cache {
	t.Helper()
	return rebuildCache(t, prev, projectDir, false)
}

func cloneCacheWithClear(t *testing.T, prev *cache.Cache, projectDir string) *cache.Cache {
	t.Helper()
	return rebuildCache(t, prev, projectDir, true)
}

func rebuildCache(t *testing.T, prev *cache.Cache, projectDir string, clear bool) *cache.Cache {
	t.Helper()
	publicKeyPath, privatePEM := fixtureKeys(t)
	keys := keystore.NewMemory()
	require.NoError(t, keys.Set(destinations.CacheNamespace(), destinations.Username(), privatePEM))
	manifestPath := filepath.Join(projectDir, destinations.ManifestFile)
	return cache.New(cache.Options{
		ProjectDir: projectDir,
		Clear:      clear,
		KeyStore:   keys,
		Loader: config.NewLoader([]types.Source{
			{Kind: types.SourceProject, Path: manifestPath},
			{Kind: types.SourcePatch, Path: filepath.Join(projectDir, destinations.PatchFile)},
		}, nil),
		CachePath:     prev.Path(),
		PublicKeyPath: publicKeyPath,
	})
}
