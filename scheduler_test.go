package session_test

import (
	"sync/atomic"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerSchedulerEvery(t *testing.T) {
	scheduler := session.NewScheduler()

	var ticks atomic.Int32
	cancel := scheduler.Every(5*time.Millisecond, func() {
		ticks.Add(1)
	})

	require.Eventually(t, func() bool {
		return ticks.Load() >= 2
	}, time.Second, time.Millisecond)

	cancel()
	cancel() // idempotent

	seen := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, ticks.Load())
}

func TestTickerSchedulerAfter(t *testing.T) {
	scheduler := session.NewScheduler()

	var fired atomic.Bool
	scheduler.After(5*time.Millisecond, func() {
		fired.Store(true)
	})

	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestTickerSchedulerAfterCancel(t *testing.T) {
	scheduler := session.NewScheduler()

	var fired atomic.Bool
	cancel := scheduler.After(50*time.Millisecond, func() {
		fired.Store(true)
	})
	cancel()

	time.Sleep(80 * time.Millisecond)
	assert.False(t, fired.Load())
}
