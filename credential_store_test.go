package session_test

import (
	"testing"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore(t *testing.T) {
	store := session.NewMemoryStore()
	cfg := session.NewConfig()
	credentials := session.NewCredentialStore(store, cfg, nil)

	_, ok := credentials.Get()
	assert.False(t, ok)

	require.NoError(t, credentials.Set("abc.def.ghi"))
	got, ok := credentials.Get()
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", got)
}

func TestCredentialStoreClearRemovesLegacyUserKey(t *testing.T) {
	store := session.NewMemoryStore()
	cfg := session.NewConfig()
	credentials := session.NewCredentialStore(store, cfg, nil)

	require.NoError(t, credentials.Set("abc.def.ghi"))
	store.SetSilently(cfg.LegacyUserKey, `{"userId":"u-1"}`)

	require.NoError(t, credentials.Clear())

	_, ok := credentials.Get()
	assert.False(t, ok)
	_, ok, _ = store.Get(cfg.LegacyUserKey)
	assert.False(t, ok)
}

func TestCredentialStoreEmptyValueIsAbsent(t *testing.T) {
	store := session.NewMemoryStore()
	store.SetSilently("token", "")

	credentials := session.NewCredentialStore(store, session.NewConfig(), nil)
	_, ok := credentials.Get()
	assert.False(t, ok)
}
