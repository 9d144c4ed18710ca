package session

import (
	"sync"
	"time"
)

var _ Scheduler = (*TickerScheduler)(nil)

// TickerScheduler is the default Scheduler, backed by time.Ticker and
// time.Timer. Cancel functions are idempotent and safe to call from any
// goroutine.
type TickerScheduler struct{}

// NewScheduler returns the default ticker-backed Scheduler.
func NewScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

func (TickerScheduler) Every(interval time.Duration, fn func()) (cancel func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (TickerScheduler) After(delay time.Duration, fn func()) (cancel func()) {
	timer := time.AfterFunc(delay, fn)
	return func() {
		timer.Stop()
	}
}
