package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AuthPhase is the coarse lifecycle phase of the view state.
type AuthPhase string

const (
	// PhaseLoading holds until the first CheckAuthStatus resolves, and is
	// re-entered whenever a check runs again.
	PhaseLoading AuthPhase = "loading"
	// PhaseReady is the terminal phase of every check cycle.
	PhaseReady AuthPhase = "ready"
)

// AuthState is the single source of UI truth. Other components read session
// and credential data from storage directly, never from here.
type AuthState struct {
	Phase           AuthPhase
	IsAuthenticated bool
	User            *Claims
	Error           string
	Diagnostics     SessionDiagnostics
}

// AuthStateMachine owns AuthState and its transitions. It orchestrates
// SessionStore, CredentialStore, and Codec; runs the periodic re-validation
// and credential-expiry sweeps; and folds external store changes back into
// the state so every context sharing the same storage converges.
type AuthStateMachine struct {
	store       Store
	sessions    *SessionStore
	credentials *CredentialStore
	codec       *Codec
	classifier  *Classifier
	provider    AuthProvider
	navigator   Navigator
	scheduler   Scheduler
	sink        ActivitySink
	logger      Logger
	cfg         Config
	now         func() time.Time

	selfWrites atomic.Int32

	mu               sync.Mutex
	state            AuthState
	listeners        map[int]func(AuthState)
	nextListener     int
	cancelRevalidate func()
	cancelSweep      func()
	cancelRedirect   func()
	unsubscribe      func()
}

// AuthOption customizes AuthStateMachine construction.
type AuthOption func(*AuthStateMachine)

// WithAuthLogger overrides the logger.
func WithAuthLogger(logger Logger) AuthOption {
	return func(m *AuthStateMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithAuthClock injects a custom clock (useful for tests).
func WithAuthClock(clock func() time.Time) AuthOption {
	return func(m *AuthStateMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithAuthScheduler overrides the scheduler driving the periodic sweeps and
// the delayed redirect.
func WithAuthScheduler(scheduler Scheduler) AuthOption {
	return func(m *AuthStateMachine) {
		if scheduler != nil {
			m.scheduler = scheduler
		}
	}
}

// WithAuthNavigator sets the Navigator used for login redirects.
func WithAuthNavigator(navigator Navigator) AuthOption {
	return func(m *AuthStateMachine) {
		m.navigator = normalizeNavigator(navigator)
	}
}

// WithAuthActivitySink sets the sink receiving auth lifecycle events.
func WithAuthActivitySink(sink ActivitySink) AuthOption {
	return func(m *AuthStateMachine) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithAuthCodec overrides the credential codec.
func WithAuthCodec(codec *Codec) AuthOption {
	return func(m *AuthStateMachine) {
		if codec != nil {
			m.codec = codec
		}
	}
}

// WithAuthClassifier overrides the failure classifier.
func WithAuthClassifier(classifier *Classifier) AuthOption {
	return func(m *AuthStateMachine) {
		if classifier != nil {
			m.classifier = classifier
		}
	}
}

// WithAuthSessionStore overrides the SessionStore built from the Store.
func WithAuthSessionStore(sessions *SessionStore) AuthOption {
	return func(m *AuthStateMachine) {
		if sessions != nil {
			m.sessions = sessions
		}
	}
}

// NewAuthStateMachine returns a machine wired over the given Store. The
// provider is the remote authentication endpoint collaborator.
func NewAuthStateMachine(store Store, provider AuthProvider, cfg Config, opts ...AuthOption) *AuthStateMachine {
	if cfg == nil {
		cfg = NewConfig()
	}

	m := &AuthStateMachine{
		store:      store,
		provider:   provider,
		cfg:        cfg,
		codec:      NewCodec(),
		classifier: NewClassifier(),
		navigator:  noopNavigator{},
		scheduler:  NewScheduler(),
		sink:       noopActivitySink{},
		logger:     defLogger{},
		now:        time.Now,
		listeners:  map[int]func(AuthState){},
		state:      AuthState{Phase: PhaseLoading},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.sessions == nil {
		m.sessions = NewSessionStore(sessionWrites{Store: store, machine: m}, cfg,
			WithSessionClock(m.now),
			WithSessionLogger(m.logger),
			WithSessionCodec(m.codec),
			WithSessionScheduler(m.scheduler),
			WithSessionActivitySink(m.sink),
		)
	}
	m.credentials = NewCredentialStore(store, cfg, m.logger)

	return m
}

// Start subscribes to external store changes and runs the initial
// authentication check.
func (m *AuthStateMachine) Start() {
	m.mu.Lock()
	if m.unsubscribe == nil {
		if notifier, ok := m.store.(ChangeNotifier); ok {
			m.unsubscribe = notifier.Subscribe(m.storeChanged)
		}
	}
	m.mu.Unlock()

	m.CheckAuthStatus()
}

// Stop cancels every timer and subscription. The persisted session is left
// untouched.
func (m *AuthStateMachine) Stop() {
	m.sessions.StopMonitoring()

	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.stopLoopsLocked()
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// State returns a snapshot of the current state.
func (m *AuthStateMachine) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports the current view-state answer.
func (m *AuthStateMachine) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthenticated
}

// Token returns the stored credential, if any.
func (m *AuthStateMachine) Token() (string, bool) {
	return m.credentials.Get()
}

// OnChange registers a listener invoked with a state snapshot after every
// transition. The returned cancel func removes it.
func (m *AuthStateMachine) OnChange(fn func(AuthState)) (cancel func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// CheckAuthStatus re-derives the state from the persisted session: legacy
// migration, validation, claim decoding, and a defensive credential resync.
// It always ends with phase ready.
func (m *AuthStateMachine) CheckAuthStatus() {
	m.setLoading()

	m.beginSelfWrite()
	outcome := m.sessions.Initialize()
	m.endSelfWrite()

	if !outcome.IsValid {
		if outcome.Record != nil && outcome.Reason != "" {
			m.HandleSessionTimeout(outcome.Reason)
			return
		}
		m.setUnauthenticated("")
		return
	}

	record := outcome.Record

	// Resync the bare credential key with the session record.
	m.beginSelfWrite()
	if err := m.credentials.Set(record.Credential); err != nil {
		m.logger.Error("credential resync failed: %v", err)
	}
	m.endSelfWrite()

	if m.codec.IsExpired(record.Credential) {
		m.logger.Warn("expired credential inside a fresh session")
		m.HandleSessionTimeout(ReasonExpired)
		return
	}

	claims, err := m.codec.Decode(record.Credential)
	if err != nil {
		m.HandleSessionTimeout(ReasonCorrupted)
		return
	}

	user := m.mergeUser(claims)

	m.mu.Lock()
	m.state = AuthState{
		Phase:           PhaseReady,
		IsAuthenticated: true,
		User:            user,
		Diagnostics:     m.sessions.Diagnostics(),
	}
	m.startLoopsLocked()
	snapshot := m.state
	m.mu.Unlock()

	m.logger.Debug("session restored: %s", print.MaybePrettyJSON(snapshot.Diagnostics))
	m.notify(snapshot)
}

// Login verifies the identifier/secret pair against the remote endpoint and
// establishes the session. Failures are classified and stored as a
// guaranteed non-empty message before being returned to the caller.
func (m *AuthStateMachine) Login(ctx context.Context, identifier, secret string) error {
	payload := LoginRequest{Identifier: identifier, Secret: secret}
	if err := payload.Validate(); err != nil {
		rich := goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
		m.setUnauthenticated(rich.Message)
		return rich
	}

	m.setLoading()

	result, err := m.provider.Authenticate(ctx, identifier, secret)
	if err != nil {
		message := m.loginErrorMessage(err)
		m.logger.Error("login failed: %v", err)
		m.setUnauthenticated(message)
		m.recordEvent(ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      message,
		})
		return goerrors.Wrap(err, goerrors.CategoryAuth, message)
	}

	if result == nil || result.Credential == "" {
		m.setUnauthenticated(ErrMissingCredential.Message)
		m.recordEvent(ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      ErrMissingCredential.Message,
		})
		return ErrMissingCredential
	}

	claims, err := m.codec.Decode(result.Credential)
	if err != nil {
		m.setUnauthenticated(ErrMalformedCredential.Message)
		m.recordEvent(ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      ErrMalformedCredential.Message,
		})
		return err
	}

	user := m.mergeUser(claims)

	m.beginSelfWrite()
	if err := m.credentials.Set(result.Credential); err != nil {
		m.logger.Error("credential write failed: %v", err)
	}
	if _, err := m.sessions.Save(result.Credential, user); err != nil {
		m.logger.Error("session save failed: %v", err)
	}
	m.endSelfWrite()

	m.sessions.StartMonitoring()

	m.mu.Lock()
	m.state = AuthState{
		Phase:           PhaseReady,
		IsAuthenticated: true,
		User:            user,
		Diagnostics:     m.sessions.Diagnostics(),
	}
	m.startLoopsLocked()
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
	m.recordEvent(ActivityEventLoginSuccess, user.UserID, map[string]any{
		"identifier": identifier,
	})
	return nil
}

// Logout stops every timer, clears both stores, and resets the state to
// unauthenticated with no error.
func (m *AuthStateMachine) Logout() {
	m.sessions.StopMonitoring()

	m.mu.Lock()
	userID := ""
	if m.state.User != nil {
		userID = m.state.User.UserID
	}
	m.stopLoopsLocked()
	m.mu.Unlock()

	m.beginSelfWrite()
	if err := m.sessions.Clear(); err != nil {
		m.logger.Error("session clear failed: %v", err)
	}
	if err := m.credentials.Clear(); err != nil {
		m.logger.Error("credential clear failed: %v", err)
	}
	m.endSelfWrite()

	m.mu.Lock()
	m.state = AuthState{
		Phase:       PhaseReady,
		Diagnostics: m.sessions.Diagnostics(),
	}
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
	m.recordEvent(ActivityEventLogout, userID, nil)
}

// HandleSessionTimeout clears storage, surfaces a reason-specific message,
// and schedules a delayed redirect so the message can be seen. Storage is
// cleared before the redirect is scheduled: a concurrent check reading
// storage after this point observes "no session", never a half-cleared one.
func (m *AuthStateMachine) HandleSessionTimeout(reason ValidationReason) {
	m.logger.Warn("session expired: %s", reasonOrUnknown(reason))

	m.sessions.StopMonitoring()

	m.beginSelfWrite()
	if err := m.sessions.Clear(); err != nil {
		m.logger.Error("session clear failed: %v", err)
	}
	if err := m.credentials.Clear(); err != nil {
		m.logger.Error("credential clear failed: %v", err)
	}
	m.endSelfWrite()

	message := fmt.Sprintf("Session expired: %s. Please sign in again.", timeoutCause(reason))

	m.mu.Lock()
	m.state = AuthState{
		Phase:       PhaseReady,
		Error:       message,
		Diagnostics: m.sessions.Diagnostics(),
	}
	m.stopLoopsLocked()
	m.cancelRedirect = m.scheduler.After(m.cfg.GetRedirectDelay(), m.navigateToLogin)
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
	m.recordEvent(ActivityEventSessionTimeout, "", map[string]any{
		"reason": string(reason),
	})
}

// RedirectToLogin clears both stores immediately and navigates to the login
// entry point unless already there. Idempotent: repeated calls perform at
// most one navigation per distinct non-login location.
func (m *AuthStateMachine) RedirectToLogin() {
	m.beginSelfWrite()
	if err := m.sessions.Clear(); err != nil {
		m.logger.Error("session clear failed: %v", err)
	}
	if err := m.credentials.Clear(); err != nil {
		m.logger.Error("credential clear failed: %v", err)
	}
	m.endSelfWrite()

	m.mu.Lock()
	m.state.IsAuthenticated = false
	m.state.User = nil
	m.state.Diagnostics = m.sessions.Diagnostics()
	m.stopLoopsLocked()
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
	m.navigateToLogin()
}

// ClearError removes the last user-facing error without touching anything
// else.
func (m *AuthStateMachine) ClearError() {
	m.mu.Lock()
	m.state.Error = ""
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)
}

// RefreshDiagnostics re-reads the diagnostics snapshot into the state.
func (m *AuthStateMachine) RefreshDiagnostics() {
	m.mu.Lock()
	m.state.Diagnostics = m.sessions.Diagnostics()
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)
}

// ReportActivity forwards a user-interaction event to the session store's
// throttled activity updater.
func (m *AuthStateMachine) ReportActivity() {
	m.beginSelfWrite()
	m.sessions.ReportActivity()
	m.endSelfWrite()
}

func (m *AuthStateMachine) setLoading() {
	m.mu.Lock()
	m.state.Phase = PhaseLoading
	m.state.Error = ""
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *AuthStateMachine) setUnauthenticated(message string) {
	m.mu.Lock()
	m.state = AuthState{
		Phase:       PhaseReady,
		Error:       message,
		Diagnostics: m.sessions.Diagnostics(),
	}
	m.stopLoopsLocked()
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *AuthStateMachine) mergeUser(claims *Claims) *Claims {
	user := claims.Clone()
	if user.Language == "" {
		user.Language = m.cfg.GetDefaultLanguage()
	}
	user.CompanyID = user.TenantID
	return user
}

// loginErrorMessage maps a provider failure to a login-specific message:
// an extracted response-body message wins; otherwise 401, 403, and
// no-response failures each get their own sentence.
func (m *AuthStateMachine) loginErrorMessage(err error) string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return "Could not sign in. Try again."
	}

	status, _ := rich.Metadata["status"].(int)
	extracted, _ := rich.Metadata["extracted"].(bool)

	if extracted && usableMessage(rich.Message) {
		return rich.Message
	}

	switch status {
	case http.StatusUnauthorized:
		return "Invalid credentials. Check your username and password."
	case http.StatusForbidden:
		return "Access denied. You do not have permission to access the system."
	case 0:
		return "Connection error. Check your internet connection."
	}

	if usableMessage(rich.Message) {
		return rich.Message
	}
	return "Could not sign in. Try again."
}

func (m *AuthStateMachine) startLoopsLocked() {
	if m.cancelRevalidate == nil {
		m.cancelRevalidate = m.scheduler.Every(m.cfg.GetRevalidateInterval(), m.revalidate)
	}
	if m.cancelSweep == nil {
		m.cancelSweep = m.scheduler.Every(m.cfg.GetExpirySweepInterval(), m.sweepCredential)
	}
}

func (m *AuthStateMachine) stopLoopsLocked() {
	if m.cancelRevalidate != nil {
		m.cancelRevalidate()
		m.cancelRevalidate = nil
	}
	if m.cancelSweep != nil {
		m.cancelSweep()
		m.cancelSweep = nil
	}
	if m.cancelRedirect != nil {
		m.cancelRedirect()
		m.cancelRedirect = nil
	}
}

// revalidate is the 60-second sweep: an invalid session forces the timeout
// path, a valid one refreshes the diagnostics snapshot only.
func (m *AuthStateMachine) revalidate() {
	if !m.IsAuthenticated() {
		return
	}

	outcome := m.sessions.Validate(nil)
	if !outcome.IsValid && outcome.Reason != "" {
		m.logger.Warn("invalid session detected during periodic check")
		m.HandleSessionTimeout(outcome.Reason)
		return
	}

	m.RefreshDiagnostics()
}

// sweepCredential is the 5-minute credential-expiry sweep: a present but
// expired (or undecodable) credential triggers the redirect path.
func (m *AuthStateMachine) sweepCredential() {
	credential, ok := m.credentials.Get()
	if !ok {
		return
	}

	if m.codec.IsExpired(credential) {
		m.logger.Warn("expired credential detected during periodic sweep")
		m.RedirectToLogin()
	}
}

// storeChanged funnels external storage mutations back into the machine. A
// removed or emptied credential/session key flips the state immediately; a
// new value triggers a fresh check.
func (m *AuthStateMachine) storeChanged(ev ChangeEvent) {
	if m.selfWrites.Load() > 0 {
		return
	}
	if ev.Key != m.cfg.GetCredentialKey() && ev.Key != m.cfg.GetSessionKey() {
		return
	}

	if ev.Removed || ev.Value == "" {
		m.logger.Info("storage change removed %s, flipping to unauthenticated", ev.Key)
		m.setUnauthenticated("")
		return
	}

	m.logger.Info("storage change detected on %s, re-checking authentication", ev.Key)
	m.CheckAuthStatus()
}

func (m *AuthStateMachine) navigateToLogin() {
	loginPath := m.cfg.GetLoginPath()
	if m.navigator.CurrentPath() == loginPath {
		return
	}
	m.navigator.Navigate(loginPath)
}

func (m *AuthStateMachine) notify(state AuthState) {
	m.mu.Lock()
	listeners := make([]func(AuthState), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(state)
		}
	}
}

func (m *AuthStateMachine) recordEvent(eventType ActivityEventType, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(m.sink)
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}
	if err := sink.Record(event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

func (m *AuthStateMachine) beginSelfWrite() {
	m.selfWrites.Add(1)
}

func (m *AuthStateMachine) endSelfWrite() {
	m.selfWrites.Add(-1)
}

// sessionWrites marks every write issued through the machine's own session
// store as a self-write, so the activity monitor's periodic updates do not
// re-enter the change subscription.
type sessionWrites struct {
	Store
	machine *AuthStateMachine
}

func (s sessionWrites) Set(key, value string) error {
	s.machine.beginSelfWrite()
	defer s.machine.endSelfWrite()
	return s.Store.Set(key, value)
}

func (s sessionWrites) Delete(key string) error {
	s.machine.beginSelfWrite()
	defer s.machine.endSelfWrite()
	return s.Store.Delete(key)
}

func timeoutCause(reason ValidationReason) string {
	switch reason {
	case ReasonInactive:
		return "inactivity"
	case ReasonExpired:
		return "time limit"
	case ReasonCorrupted:
		return "invalid token"
	}
	return "unknown reason"
}

func reasonOrUnknown(reason ValidationReason) string {
	if reason == "" {
		return "unknown"
	}
	return string(reason)
}
