package keystore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-build/ember/pkg/keystore"
)

func TestMemory_RoundTrip(t *testing.T) {
	store := keystore.NewMemory()

	require.NoError(t, store.Set("ember.sophia.cache", "sophia", "pem-blob"))
	secret, err := store.Get("ember.sophia.cache", "sophia")
	require.NoError(t, err)
	assert.Equal(t, "pem-blob", secret)

	require.NoError(t, store.Set("ember.sophia.cache", "sophia", "rotated"))
	secret, err = store.Get("ember.sophia.cache", "sophia")
	require.NoError(t, err)
	assert.Equal(t, "rotated", secret)
}

func TestMemory_MissingSecret(t *testing.T) {
	store := keystore.NewMemory()

	_, err := store.Get("ember.sophia.cache", "sophia")
	assert.ErrorIs(t, err, keystore.ErrNotFound)

	assert.ErrorIs(t, store.Delete("ember.sophia.cache", "sophia"), keystore.ErrNotFound)
}

func TestMemory_KeysByServiceAndAccount(t *testing.T) {
	store := keystore.NewMemory()

	require.NoError(t, store.Set("ember.sophia.cache", "sophia", "hers"))
	require.NoError(t, store.Set("ember.marcus.cache", "marcus", "his"))

	_, err := store.Get("ember.sophia.cache", "marcus")
	assert.ErrorIs(t, err, keystore.ErrNotFound)

	require.NoError(t, store.Delete("ember.sophia.cache", "sophia"))
	secret, err := store.Get("ember.marcus.cache", "marcus")
	require.NoError(t, err)
	assert.Equal(t, "his", secret)
}
