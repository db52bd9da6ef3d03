// Package cache maintains the signed per-project configuration cache.
//
// Parsing and merging the declaration sources on every invocation is wasted
// work, so the merged settings are persisted once in a temp-directory file
// laid out as [512-byte signature][payload]. Because that directory is
// world-writable, the file is only ever trusted while its signature
// verifies under the user's public key; corruption or tampering is silently
// repaired by regenerating from the declaration sources.
package cache

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ember-build/ember/pkg/config"
	"github.com/ember-build/ember/pkg/crypto"
	"github.com/ember-build/ember/pkg/destinations"
	"github.com/ember-build/ember/pkg/keystore"
	"github.com/ember-build/ember/pkg/logger"
)

// ErrNotOpen indicates a read was attempted before Open.
var ErrNotOpen = errors.New("cache is not open: acquire it with Open before reading")

// State tracks the cache lifecycle.
type State int

const (
	StateUnopened State = iota
	StateRegenerating
	StateValid
	StateClosed
)

// Owner-only permissions; several Unix filesystems additionally require the
// execute bit to create files inside the directory.
const cacheDirPerm = 0o700

// Cache owns the signed on-disk cache file for one project.
type Cache struct {
	path          string
	publicKeyPath string
	service       string
	account       string
	clear         bool

	keys   keystore.Store
	loader *config.Loader
	logger logger.Logger

	state     State
	payload   []byte
	signature []byte
	publicKey []byte
}

// Options configures a Cache. Zero-value fields fall back to the real
// platform collaborators; tests inject fakes.
type Options struct {
	// ProjectDir is the absolute project directory. Defaults to the
	// current working directory.
	ProjectDir string

	// Clear requests an empty payload awaiting an explicit Write instead
	// of reading or regenerating on Open.
	Clear bool

	KeyStore keystore.Store
	Loader   *config.Loader
	Logger   logger.Logger

	// CachePath and PublicKeyPath override the platform destinations.
	CachePath     string
	PublicKeyPath string
}

// New creates a cache handle for the project. Nothing touches the disk
// until Open.
func New(opts Options) *Cache {
	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir, _ = os.Getwd()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	keys := opts.KeyStore
	if keys == nil {
		keys = keystore.System()
	}
	loader := opts.Loader
	if loader == nil {
		loader = config.NewLoader(destinations.Sources(projectDir), log)
	}
	path := opts.CachePath
	if path == "" {
		path = destinations.CachePath(projectDir)
	}
	publicKeyPath := opts.PublicKeyPath
	if publicKeyPath == "" {
		publicKeyPath = destinations.PublicKeyPath()
	}

	return &Cache{
		path:          path,
		publicKeyPath: publicKeyPath,
		service:       destinations.CacheNamespace(),
		account:       destinations.Username(),
		clear:         opts.Clear,
		keys:          keys,
		loader:        loader,
		logger:        log.WithComponent("cache"),
	}
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	return c.state
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Open prepares the cache for use: it loads (or creates) the key pair,
// then either trusts the existing signed file or regenerates it from the
// declaration sources. Pair every successful Open with Close so the cache
// is persisted exactly once per use.
func (c *Cache) Open(ctx context.Context) error {
	publicKey, err := c.loadPublicKey()
	if err != nil {
		return err
	}
	c.publicKey = publicKey

	if !exists(c.path) {
		if err := os.MkdirAll(filepath.Dir(c.path), cacheDirPerm); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		c.state = StateRegenerating
		return c.Regenerate(ctx)
	}

	if c.clear {
		c.state = StateValid
		c.payload = nil
		c.signature = nil
		return nil
	}

	if c.anySourceNewer() {
		c.logger.Debug("declaration sources changed since the cache was written")
		c.state = StateRegenerating
		return c.Regenerate(ctx)
	}

	contents, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(contents) < crypto.SignatureSize {
		c.state = StateRegenerating
		return c.Regenerate(ctx)
	}
	c.signature = contents[:crypto.SignatureSize]
	c.payload = contents[crypto.SignatureSize:]
	if !crypto.Verify(c.payload, c.signature, c.publicKey) {
		c.logger.Warn("cache signature did not verify, regenerating")
		c.state = StateRegenerating
		return c.Regenerate(ctx)
	}
	c.state = StateValid
	return nil
}

// Regenerate rebuilds the payload from the declaration sources and persists
// it immediately. The project manifest must exist; everything else is
// optional.
func (c *Cache) Regenerate(ctx context.Context) error {
	settings, err := c.loader.Load(ctx)
	if err != nil {
		// Nothing trustworthy was produced; a later Close must not
		// persist the stale in-memory payload.
		c.state = StateUnopened
		return err
	}
	payload, err := marshalRecord(settings)
	if err != nil {
		c.state = StateUnopened
		return err
	}
	c.payload = payload
	c.state = StateValid
	// Sync immediately: callers expect an existing cache file after Open.
	return c.Sync()
}

// Sync signs the in-memory payload and overwrites the cache file with
// [signature][payload]. Only an opened cache has a payload worth
// persisting; syncing outside the open window is a caller bug.
func (c *Cache) Sync() error {
	if c.state == StateUnopened || c.state == StateClosed {
		return ErrNotOpen
	}
	privateKey, err := c.loadPrivateKey()
	if err != nil {
		return err
	}
	signature, err := crypto.Sign(c.payload, privateKey)
	if err != nil {
		return err
	}
	c.signature = signature

	if err := os.MkdirAll(filepath.Dir(c.path), cacheDirPerm); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	contents := make([]byte, 0, len(signature)+len(c.payload))
	contents = append(contents, signature...)
	contents = append(contents, c.payload...)

	// Write-then-rename so a concurrent reader never sees a half-written
	// signature.
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, contents, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Close persists an opened cache and marks it closed. Safe on every exit
// path: a cache that never reached Open (a failed Open included) has
// nothing to persist and closing it touches neither disk nor keystore.
func (c *Cache) Close() error {
	if c.state == StateUnopened || c.state == StateClosed {
		c.state = StateClosed
		return nil
	}
	err := c.Sync()
	c.state = StateClosed
	return err
}

// Write replaces the entire in-memory payload with the serialized form of
// v. The previous contents are not merged; use Append to add to the cache.
func (c *Cache) Write(v interface{}) error {
	record, err := marshalRecord(v)
	if err != nil {
		return err
	}
	c.payload = record
	return nil
}

// Append serializes v and appends it to the payload, returning the appended
// byte length so the caller can track offsets for later sliced reads.
func (c *Cache) Append(v interface{}) (int, error) {
	record, err := marshalRecord(v)
	if err != nil {
		return 0, err
	}
	c.payload = append(c.payload, record...)
	return len(record), nil
}

// Read deserializes the payload into v. The cache must have been opened; a
// missing backing file is regenerated first.
func (c *Cache) Read(ctx context.Context, v interface{}) error {
	return c.ReadRange(ctx, v, 0, -1)
}

// ReadRange deserializes part of the payload into v. When the cache
// currently verifies as authentic and size is non-negative, only
// [offset, offset+size) is decoded; otherwise the whole payload is.
func (c *Cache) ReadRange(ctx context.Context, v interface{}, offset, size int) error {
	if c.state == StateUnopened || c.state == StateClosed {
		return ErrNotOpen
	}
	if !exists(c.path) {
		if err := c.Regenerate(ctx); err != nil {
			return err
		}
	}
	if c.IsCached(ctx) && size >= 0 {
		end := offset + size
		if offset < 0 || end > len(c.payload) {
			return fmt.Errorf("cache range [%d, %d) outside payload of %d bytes", offset, end, len(c.payload))
		}
		return unmarshalRecord(c.payload[offset:end], v)
	}
	return unmarshalRecord(c.payload, v)
}

// IsCached reports whether the in-memory payload verifies against its
// stored signature, opening the cache on demand. A payload that fails
// verification takes the on-disk file with it.
func (c *Cache) IsCached(ctx context.Context) bool {
	if c.state == StateUnopened || c.state == StateClosed {
		if err := c.Open(ctx); err != nil {
			return false
		}
	}
	if crypto.Verify(c.payload, c.signature, c.publicKey) {
		return true
	}
	// The file did not pass verification, so it is not worth keeping.
	_ = os.Remove(c.path)
	return false
}

// Size returns the byte length of the current in-memory payload.
func (c *Cache) Size() int {
	return len(c.payload)
}

// loadPublicKey reads the persisted public key, generating and persisting a
// fresh pair when none exists yet.
func (c *Cache) loadPublicKey() ([]byte, error) {
	if !exists(c.publicKeyPath) {
		publicKey, privateKey, err := crypto.GenerateKeyPair(c.publicKeyPath)
		if err != nil {
			return nil, err
		}
		encoded, err := crypto.EncodePrivateKey(privateKey)
		if err != nil {
			return nil, err
		}
		if err := c.keys.Set(c.service, c.account, encoded); err != nil {
			return nil, fmt.Errorf("failed to store private key: %w", err)
		}
		return publicKey, nil
	}
	publicKey, err := os.ReadFile(c.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return publicKey, nil
}

// loadPrivateKey fetches the signing key from the keystore. A missing or
// undecodable secret is recovered transparently with a fresh key pair; the
// old cache file then simply fails verification and regenerates.
func (c *Cache) loadPrivateKey() (*rsa.PrivateKey, error) {
	encoded, err := c.keys.Get(c.service, c.account)
	if err == nil {
		if key, decodeErr := crypto.DecodePrivateKey(encoded); decodeErr == nil {
			return key, nil
		}
		c.logger.Warn("stored private key is unparseable, generating a new pair")
	} else if !errors.Is(err, keystore.ErrNotFound) {
		return nil, fmt.Errorf("failed to query keystore: %w", err)
	}

	publicKey, key, err := crypto.GenerateKeyPair(c.publicKeyPath)
	if err != nil {
		return nil, err
	}
	reencoded, err := crypto.EncodePrivateKey(key)
	if err != nil {
		return nil, err
	}
	if err := c.keys.Set(c.service, c.account, reencoded); err != nil {
		return nil, fmt.Errorf("failed to store private key: %w", err)
	}
	c.publicKey = publicKey
	return key, nil
}

// anySourceNewer reports whether any declaration source was modified after
// the cache file was written.
func (c *Cache) anySourceNewer() bool {
	cacheInfo, err := os.Stat(c.path)
	if err != nil {
		return true
	}
	for _, source := range c.loader.Sources() {
		info, err := os.Stat(source.Path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cacheInfo.ModTime()) {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
