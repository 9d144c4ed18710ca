package session_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("token", "abc"))
	value, ok, err := store.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)

	require.NoError(t, store.Delete("token"))
	_, ok, _ = store.Get("token")
	assert.False(t, ok)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", "abc"))
	require.NoError(t, first.Close())

	second, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	defer second.Close()

	value, ok, err := second.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)
}

func TestFileStoreCorruptedFileResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreNotifiesAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	reader, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	defer reader.Close()

	writer, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	defer writer.Close()

	var mu sync.Mutex
	var events []session.ChangeEvent
	reader.Subscribe(func(ev session.ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.NoError(t, writer.Set("token", "abc"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, session.ChangeEvent{Key: "token", Value: "abc"}, events[0])
	mu.Unlock()

	require.NoError(t, writer.Delete("token"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, session.ChangeEvent{Key: "token", Removed: true}, events[1])
	mu.Unlock()
}

func TestFileStoreLocalWritesDoNotEcho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := session.NewFileStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	var mu sync.Mutex
	fired := false
	store.Subscribe(func(session.ChangeEvent) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	require.NoError(t, store.Set("token", "abc"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.False(t, fired)
	mu.Unlock()
}
