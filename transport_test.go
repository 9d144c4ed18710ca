package session_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type guardFixture struct {
	store     *session.MemoryStore
	guard     *session.Guard
	clock     *testClock
	cfg       *session.SimpleConfig
	redirects int
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	f := &guardFixture{
		store: session.NewMemoryStore(),
		clock: newTestClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		cfg:   session.NewConfig(),
	}
	f.guard = session.NewGuard(f.store, f.cfg,
		func() { f.redirects++ },
		session.WithGuardCodec(session.NewCodec(session.WithCodecClock(f.clock.Now))),
	)
	return f
}

func (f *guardFixture) setCredential(t *testing.T, ttl time.Duration) string {
	t.Helper()
	now := f.clock.Now()
	credential := makeCredential(t, now, now.Add(ttl))
	f.store.SetSilently(f.cfg.CredentialKey, credential)
	return credential
}

func TestGuardOutboundWithoutCredential(t *testing.T) {
	f := newGuardFixture(t)
	req := httptest.NewRequest(http.MethodGet, "http://api.local/public", nil)

	result := f.guard.Outbound(req)
	assert.False(t, result.Blocked())
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Zero(t, f.redirects)
}

func TestGuardOutboundAttachesBearer(t *testing.T) {
	f := newGuardFixture(t)
	credential := f.setCredential(t, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "http://api.local/invoices", nil)

	result := f.guard.Outbound(req)
	assert.False(t, result.Blocked())
	assert.Equal(t, "Bearer "+credential, req.Header.Get("Authorization"))
}

func TestGuardOutboundBlocksExpiredCredential(t *testing.T) {
	f := newGuardFixture(t)
	f.setCredential(t, time.Hour)
	f.clock.Advance(2 * time.Hour)
	req := httptest.NewRequest(http.MethodGet, "http://api.local/invoices", nil)

	result := f.guard.Outbound(req)
	assert.True(t, result.Blocked())
	require.NotNil(t, result.Reason)
	assert.True(t, session.IsCredentialExpiredError(result.Reason))
	assert.Equal(t, "http://api.local/invoices", result.Reason.Metadata["url"])
	assert.Empty(t, req.Header.Get("Authorization"))

	assert.Equal(t, 1, f.redirects)
	_, ok, _ := f.store.Get(f.cfg.CredentialKey)
	assert.False(t, ok)
}

func TestGuardInboundSuccessIsNil(t *testing.T) {
	f := newGuardFixture(t)

	assert.NoError(t, f.guard.Inbound(&http.Response{StatusCode: 200}, nil))
	assert.NoError(t, f.guard.Inbound(&http.Response{StatusCode: 204}, nil))
	assert.Zero(t, f.redirects)
}

func TestGuardInbound401ForcesLogout(t *testing.T) {
	f := newGuardFixture(t)
	f.setCredential(t, time.Hour)

	resp := &http.Response{
		StatusCode: 401,
		Body:       io.NopCloser(bytes.NewBufferString(`{"message":"token revoked"}`)),
	}

	err := f.guard.Inbound(resp, nil)
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "token revoked", rich.Message)
	assert.Equal(t, "auth", rich.Metadata["kind"])

	assert.Equal(t, 1, f.redirects)
	_, ok, _ := f.store.Get(f.cfg.CredentialKey)
	assert.False(t, ok)
}

func TestGuardInbound403KeepsCredential(t *testing.T) {
	f := newGuardFixture(t)
	credential := f.setCredential(t, time.Hour)

	resp := &http.Response{
		StatusCode: 403,
		Body:       io.NopCloser(bytes.NewBufferString(`{}`)),
	}

	err := f.guard.Inbound(resp, nil)
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "Access denied. You do not have permission to access this resource.", rich.Message)

	assert.Zero(t, f.redirects, "403 must not navigate")
	got, ok, _ := f.store.Get(f.cfg.CredentialKey)
	assert.True(t, ok)
	assert.Equal(t, credential, got)
}

func TestGuardInboundTransportError(t *testing.T) {
	f := newGuardFixture(t)

	err := f.guard.Inbound(nil, errors.New("connection refused"))
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "network", rich.Metadata["kind"])
	assert.Zero(t, f.redirects)
}

// A 403 surfaced through the guard leaves an authenticated machine alone.
func TestGuard403LeavesAuthenticatedStateAlone(t *testing.T) {
	mf := newMachineFixture(t)
	mf.seedSession(t, mf.credential(t, 8*time.Hour))
	mf.machine.Start()
	require.True(t, mf.machine.IsAuthenticated())

	guard := session.NewGuard(mf.store, mf.cfg,
		mf.machine.RedirectToLogin,
		session.WithGuardCodec(session.NewCodec(session.WithCodecClock(mf.clock.Now))),
	)

	resp := &http.Response{
		StatusCode: 403,
		Body:       io.NopCloser(bytes.NewBufferString(`{"message":"no permission"}`)),
	}
	err := guard.Inbound(resp, nil)
	require.Error(t, err)

	assert.True(t, mf.machine.IsAuthenticated())
	assert.Empty(t, mf.navigator.navigations())
}

func TestGuardedTransport(t *testing.T) {
	t.Run("blocked request never reaches the server", func(t *testing.T) {
		f := newGuardFixture(t)
		f.setCredential(t, time.Hour)
		f.clock.Advance(2 * time.Hour)

		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
		}))
		defer server.Close()

		client := &http.Client{Transport: session.NewGuardedTransport(nil, f.guard)}
		_, err := client.Get(server.URL)
		require.Error(t, err)
		assert.True(t, session.IsCredentialExpiredError(err))
		assert.Zero(t, hits)
		assert.Equal(t, 1, f.redirects)
	})

	t.Run("bearer header reaches the server", func(t *testing.T) {
		f := newGuardFixture(t)
		credential := f.setCredential(t, time.Hour)

		var got string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("Authorization")
		}))
		defer server.Close()

		client := &http.Client{Transport: session.NewGuardedTransport(nil, f.guard)}
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "Bearer "+credential, got)
	})

	t.Run("401 response triggers side effects and passes through", func(t *testing.T) {
		f := newGuardFixture(t)
		f.setCredential(t, time.Hour)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"token revoked"}`))
		}))
		defer server.Close()

		client := &http.Client{Transport: session.NewGuardedTransport(nil, f.guard)}
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 401, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"message":"token revoked"}`, string(body))

		assert.Equal(t, 1, f.redirects)
		_, ok, _ := f.store.Get(f.cfg.CredentialKey)
		assert.False(t, ok)
	})
}
