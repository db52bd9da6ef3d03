// Package keystore abstracts the OS secret store holding the cache
// signing key.
//
// Only the narrow get/set/delete surface the cache needs is exposed, so
// tests can substitute an in-memory store instead of mutating the real
// keychain.
package keystore

import (
	"errors"
	"sync"

	keyring "github.com/zalando/go-keyring"
)

// ErrNotFound indicates no secret is stored under (service, account)
var ErrNotFound = errors.New("secret not found in keystore")

// Store is a secret-storage capability keyed by (service, account).
type Store interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
	Delete(service, account string) error
}

// systemStore is backed by the platform keyring (Keychain, Secret Service,
// Credential Manager).
type systemStore struct{}

// System returns the OS-backed keystore.
func System() Store {
	return systemStore{}
}

func (systemStore) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return secret, err
}

func (systemStore) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

func (systemStore) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Memory is an in-memory Store for tests.
type Memory struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewMemory creates an empty in-memory keystore.
func NewMemory() *Memory {
	return &Memory{secrets: make(map[string]string)}
}

func (m *Memory) key(service, account string) string {
	return service + "\x00" + account
}

func (m *Memory) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.secrets[m.key(service, account)]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *Memory) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[m.key(service, account)] = secret
	return nil
}

func (m *Memory) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(service, account)
	if _, ok := m.secrets[k]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, k)
	return nil
}
