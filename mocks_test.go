package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	session "github.com/goliatone/go-session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

// testClock is a controllable clock shared by a store and its machine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualScheduler records jobs instead of running timers, so tests fire the
// sweeps deterministically.
type manualScheduler struct {
	mu    sync.Mutex
	every []*manualJob
	after []*manualJob
}

type manualJob struct {
	interval time.Duration
	fn       func()
	canceled bool
	fired    bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{}
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	job := &manualJob{interval: interval, fn: fn}
	s.every = append(s.every, job)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		job.canceled = true
		s.mu.Unlock()
	}
}

func (s *manualScheduler) After(delay time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	job := &manualJob{interval: delay, fn: fn}
	s.after = append(s.after, job)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		job.canceled = true
		s.mu.Unlock()
	}
}

// fireEvery runs every live periodic job once.
func (s *manualScheduler) fireEvery() {
	s.mu.Lock()
	jobs := make([]*manualJob, 0, len(s.every))
	for _, job := range s.every {
		if !job.canceled {
			jobs = append(jobs, job)
		}
	}
	s.mu.Unlock()

	for _, job := range jobs {
		job.fn()
	}
}

// fireAfter runs every live delayed job once and consumes it.
func (s *manualScheduler) fireAfter() {
	s.mu.Lock()
	jobs := make([]*manualJob, 0, len(s.after))
	for _, job := range s.after {
		if !job.canceled && !job.fired {
			job.fired = true
			jobs = append(jobs, job)
		}
	}
	s.mu.Unlock()

	for _, job := range jobs {
		job.fn()
	}
}

func (s *manualScheduler) liveEvery() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.every {
		if !job.canceled {
			count++
		}
	}
	return count
}

func (s *manualScheduler) pendingAfter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.after {
		if !job.canceled && !job.fired {
			count++
		}
	}
	return count
}

// recordingNavigator tracks the current path and every navigation.
type recordingNavigator struct {
	mu      sync.Mutex
	path    string
	history []string
}

func newRecordingNavigator(path string) *recordingNavigator {
	return &recordingNavigator{path: path}
}

func (n *recordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	n.path = path
	n.history = append(n.history, path)
	n.mu.Unlock()
}

func (n *recordingNavigator) navigations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}

// captureSink records activity events.
type captureSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (s *captureSink) Record(event session.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) byType(t session.ActivityEventType) []session.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.ActivityEvent
	for _, ev := range s.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

// MockAuthProvider implements session.AuthProvider.
type MockAuthProvider struct {
	mock.Mock
}

func (m *MockAuthProvider) Authenticate(ctx context.Context, identifier, secret string) (*session.LoginResult, error) {
	args := m.Called(ctx, identifier, secret)
	if result := args.Get(0); result != nil {
		return result.(*session.LoginResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// credentialOption mutates the claim set used by makeCredential.
type credentialOption func(jwt.MapClaims)

func withClaim(key string, value any) credentialOption {
	return func(claims jwt.MapClaims) {
		claims[key] = value
	}
}

func withoutClaim(key string) credentialOption {
	return func(claims jwt.MapClaims) {
		delete(claims, key)
	}
}

// makeCredential signs a well-formed test credential expiring at expiresAt.
func makeCredential(t *testing.T, issuedAt, expiresAt time.Time, opts ...credentialOption) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":           "jdoe",
		"userId":        uuid.NewString(),
		"tenantId":      uuid.NewString(),
		"tenantCode":    "ACME",
		"roles":         []string{"member"},
		"isSystemAdmin": false,
		"iat":           issuedAt.Unix(),
		"exp":           expiresAt.Unix(),
	}
	for _, opt := range opts {
		opt(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}
