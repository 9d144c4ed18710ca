package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Store is a minimal durable key/value abstraction. Writes are whole-value
// replacements: a reader never observes a partially written value.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// ChangeEvent describes a mutation applied to a Store key, possibly by
// another execution context sharing the same storage.
type ChangeEvent struct {
	Key     string
	Value   string
	Removed bool
}

// ChangeNotifier is implemented by stores that can observe external
// mutations. Subscribe returns a cancel function that removes the listener.
type ChangeNotifier interface {
	Subscribe(fn func(ChangeEvent)) (cancel func())
}

// Navigator abstracts the location the application currently shows and the
// ability to move it somewhere else. A browser target maps this onto
// window.location; tests use a recording implementation.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// Scheduler owns the timers the subsystem runs: the re-validation sweep, the
// credential-expiry sweep, the activity updater, and the delayed redirect.
// Both methods return a cancel function.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
	After(delay time.Duration, fn func()) (cancel func())
}

// LoginResult is the successful response of the remote authentication
// endpoint. Credential is required; User is an opaque summary.
type LoginResult struct {
	Credential string         `json:"token"`
	User       map[string]any `json:"user,omitempty"`
}

// AuthProvider verifies an identifier/secret pair against the remote
// authentication endpoint. Implementations must return failures already
// shaped for the Classifier (see HTTPAuthProvider).
type AuthProvider interface {
	Authenticate(ctx context.Context, identifier, secret string) (*LoginResult, error)
}

type noopNavigator struct{}

func (noopNavigator) CurrentPath() string { return "" }
func (noopNavigator) Navigate(string)     {}

func normalizeNavigator(n Navigator) Navigator {
	if n == nil {
		return noopNavigator{}
	}
	return n
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
