package session_test

import (
	"testing"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := session.NewMemoryStore()

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("token", "abc"))
	value, ok, err := store.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)

	require.NoError(t, store.Delete("token"))
	_, ok, err = store.Get("token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreNotifiesSubscribers(t *testing.T) {
	store := session.NewMemoryStore()

	var events []session.ChangeEvent
	cancel := store.Subscribe(func(ev session.ChangeEvent) {
		events = append(events, ev)
	})

	store.Set("token", "abc")
	store.Set("token", "def")
	store.Delete("token")
	store.Delete("token") // already gone, no event

	require.Len(t, events, 3)
	assert.Equal(t, session.ChangeEvent{Key: "token", Value: "abc"}, events[0])
	assert.Equal(t, session.ChangeEvent{Key: "token", Value: "def"}, events[1])
	assert.Equal(t, session.ChangeEvent{Key: "token", Removed: true}, events[2])

	cancel()
	store.Set("token", "ghi")
	assert.Len(t, events, 3)
}

func TestMemoryStoreSetSilently(t *testing.T) {
	store := session.NewMemoryStore()

	fired := false
	store.Subscribe(func(session.ChangeEvent) { fired = true })

	store.SetSilently("token", "abc")
	assert.False(t, fired)

	value, ok, err := store.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)
}
