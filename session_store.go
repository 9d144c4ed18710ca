package session

import (
	"encoding/json"
	"sync"
	"time"
)

// ValidationReason explains why a session record is invalid.
type ValidationReason string

const (
	ReasonExpired   ValidationReason = "expired"
	ReasonInactive  ValidationReason = "inactive"
	ReasonCorrupted ValidationReason = "corrupted"
	ReasonMissing   ValidationReason = "missing"
)

// SessionRecord is the single durable pairing of a credential with its
// derived user claims and two timestamps. Timestamps are epoch
// milliseconds, matching the persisted layout.
type SessionRecord struct {
	Credential   string  `json:"credential"`
	User         *Claims `json:"user,omitempty"`
	Timestamp    int64   `json:"timestamp"`
	LastActivity int64   `json:"lastActivity"`
}

// CreatedAt returns the creation time of the record.
func (r *SessionRecord) CreatedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// LastActivityAt returns the last recorded activity, falling back to the
// creation time for records written before activity tracking existed.
func (r *SessionRecord) LastActivityAt() time.Time {
	if r.LastActivity > 0 {
		return time.UnixMilli(r.LastActivity)
	}
	return r.CreatedAt()
}

// ValidationOutcome is the result of validating a session record against
// the current time. Pure value, no persisted identity.
type ValidationOutcome struct {
	IsValid bool
	Reason  ValidationReason
	Record  *SessionRecord
}

// SessionDiagnostics is a read-only snapshot used for display and
// debugging, never for control flow.
type SessionDiagnostics struct {
	HasSession bool
	IsValid    bool
	Age        time.Duration
	Inactivity time.Duration
	Reason     ValidationReason
}

// SessionStore owns the structured session record: it validates, ages out,
// migrates from the legacy two-key layout, and tracks activity. All writes
// go through it (or CredentialStore); no other component touches the
// underlying keys.
type SessionStore struct {
	store     Store
	cfg       Config
	codec     *Codec
	logger    Logger
	scheduler Scheduler
	sink      ActivitySink
	now       func() time.Time

	mu            sync.Mutex
	cancelMonitor func()
	lastWrite     time.Time
}

// SessionStoreOption customizes SessionStore construction.
type SessionStoreOption func(*SessionStore)

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionLogger overrides the logger.
func WithSessionLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionCodec overrides the credential codec.
func WithSessionCodec(codec *Codec) SessionStoreOption {
	return func(s *SessionStore) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithSessionScheduler overrides the scheduler driving the activity loop.
func WithSessionScheduler(scheduler Scheduler) SessionStoreOption {
	return func(s *SessionStore) {
		if scheduler != nil {
			s.scheduler = scheduler
		}
	}
}

// WithSessionActivitySink sets the sink receiving lifecycle events.
func WithSessionActivitySink(sink ActivitySink) SessionStoreOption {
	return func(s *SessionStore) {
		s.sink = normalizeActivitySink(sink)
	}
}

// NewSessionStore returns a SessionStore over the given Store.
func NewSessionStore(store Store, cfg Config, opts ...SessionStoreOption) *SessionStore {
	if cfg == nil {
		cfg = NewConfig()
	}

	s := &SessionStore{
		store:     store,
		cfg:       cfg,
		codec:     NewCodec(),
		logger:    defLogger{},
		scheduler: NewScheduler(),
		sink:      noopActivitySink{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Save builds a fresh record with createdAt = lastActivityAt = now and
// persists it, fully replacing any prior record.
func (s *SessionStore) Save(credential string, user *Claims) (*SessionRecord, error) {
	now := s.now().UnixMilli()
	record := &SessionRecord{
		Credential:   credential,
		User:         user,
		Timestamp:    now,
		LastActivity: now,
	}

	if err := s.persist(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Load reads the persisted record. Structurally unreadable payloads are
// discarded on the spot, so a corrupted blob cannot resurface later.
func (s *SessionStore) Load() *SessionRecord {
	raw, ok, err := s.store.Get(s.cfg.GetSessionKey())
	if err != nil {
		s.logger.Error("session read failed: %v", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	record := &SessionRecord{}
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		s.logger.Warn("session payload unreadable, clearing: %v", err)
		s.Clear()
		return nil
	}

	if record.Credential == "" || record.Timestamp == 0 {
		s.logger.Warn("session payload incomplete, clearing")
		s.Clear()
		return nil
	}

	return record
}

// Validate resolves whether a record is still usable. Passing nil validates
// whatever is persisted. The age check runs before the inactivity check, so
// a session past both thresholds reports expired. Both thresholds treat the
// boundary instant itself as invalid.
func (s *SessionStore) Validate(record *SessionRecord) ValidationOutcome {
	if record == nil {
		record = s.Load()
	}

	if record == nil {
		return ValidationOutcome{Reason: ReasonMissing}
	}

	if record.Credential == "" || record.Timestamp == 0 {
		return ValidationOutcome{Reason: ReasonCorrupted, Record: record}
	}

	now := s.now()
	age := now.Sub(record.CreatedAt())
	inactivity := now.Sub(record.LastActivityAt())

	if age >= s.cfg.GetMaxSessionAge() {
		return ValidationOutcome{Reason: ReasonExpired, Record: record}
	}

	if inactivity >= s.cfg.GetMaxInactivity() {
		return ValidationOutcome{Reason: ReasonInactive, Record: record}
	}

	if _, err := s.codec.Decode(record.Credential); err != nil {
		return ValidationOutcome{Reason: ReasonCorrupted, Record: record}
	}

	return ValidationOutcome{IsValid: true, Record: record}
}

// Clear removes the session record and any legacy two-key remnants, so a
// half-migrated state cannot resurrect itself.
func (s *SessionStore) Clear() error {
	if err := s.store.Delete(s.cfg.GetSessionKey()); err != nil {
		return err
	}
	if err := s.store.Delete(s.cfg.GetCredentialKey()); err != nil {
		return err
	}
	return s.store.Delete(s.cfg.GetLegacyUserKey())
}

// MigrateLegacy converts the legacy bare credential + bare user layout into
// a session record, deleting the legacy keys. When either legacy piece is
// missing or the user blob does not parse, it leaves legacy state untouched
// and returns nil.
func (s *SessionStore) MigrateLegacy() *SessionRecord {
	credential, okCred, err := s.store.Get(s.cfg.GetCredentialKey())
	if err != nil {
		s.logger.Error("legacy credential read failed: %v", err)
		return nil
	}
	userRaw, okUser, err := s.store.Get(s.cfg.GetLegacyUserKey())
	if err != nil {
		s.logger.Error("legacy user read failed: %v", err)
		return nil
	}

	if !okCred || credential == "" || !okUser || userRaw == "" {
		return nil
	}

	user := &Claims{}
	if err := json.Unmarshal([]byte(userRaw), user); err != nil {
		s.logger.Warn("legacy user blob unreadable, skipping migration: %v", err)
		return nil
	}

	record, err := s.Save(credential, user)
	if err != nil {
		s.logger.Error("legacy migration save failed: %v", err)
		return nil
	}

	s.store.Delete(s.cfg.GetCredentialKey())
	s.store.Delete(s.cfg.GetLegacyUserKey())

	s.recordEvent(ActivityEventSessionMigrated, user.UserID, nil)
	s.logger.Info("legacy session migrated")

	return record
}

// Initialize is the single entry point called once at application start: it
// attempts legacy migration, loads whatever record remains, validates it,
// clears invalid records, and starts activity monitoring for valid ones.
func (s *SessionStore) Initialize() ValidationOutcome {
	record := s.MigrateLegacy()
	if record == nil {
		record = s.Load()
	}

	outcome := s.Validate(record)

	if !outcome.IsValid && outcome.Record != nil {
		s.Clear()
		s.logger.Info("invalid session removed: %s", outcome.Reason)
	} else if outcome.IsValid {
		s.StartMonitoring()
	}

	return outcome
}

// UpdateActivity rewrites lastActivityAt to now. No-op when no record
// exists.
func (s *SessionStore) UpdateActivity() error {
	record := s.Load()
	if record == nil {
		return nil
	}

	record.LastActivity = s.now().UnixMilli()
	return s.persist(record)
}

// ReportActivity is the throttled entry point for passive user-interaction
// events: at most one activity write per activity interval.
func (s *SessionStore) ReportActivity() {
	s.mu.Lock()
	now := s.now()
	if !s.lastWrite.IsZero() && now.Sub(s.lastWrite) < s.cfg.GetActivityInterval() {
		s.mu.Unlock()
		return
	}
	s.lastWrite = now
	s.mu.Unlock()

	if err := s.UpdateActivity(); err != nil {
		s.logger.Error("activity update failed: %v", err)
	}
}

// StartMonitoring starts the periodic activity updater. Idempotent.
func (s *SessionStore) StartMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelMonitor != nil {
		return
	}
	s.cancelMonitor = s.scheduler.Every(s.cfg.GetActivityInterval(), func() {
		if s.HasValidSession() {
			if err := s.UpdateActivity(); err != nil {
				s.logger.Error("periodic activity update failed: %v", err)
			}
		}
	})
}

// StopMonitoring stops the periodic activity updater. Idempotent.
func (s *SessionStore) StopMonitoring() {
	s.mu.Lock()
	cancel := s.cancelMonitor
	s.cancelMonitor = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// HasValidSession reports whether a valid session is currently persisted.
func (s *SessionStore) HasValidSession() bool {
	return s.Validate(nil).IsValid
}

// Diagnostics combines presence and validation into a read-only snapshot.
func (s *SessionStore) Diagnostics() SessionDiagnostics {
	record := s.Load()
	if record == nil {
		return SessionDiagnostics{}
	}

	outcome := s.Validate(record)
	now := s.now()

	return SessionDiagnostics{
		HasSession: true,
		IsValid:    outcome.IsValid,
		Age:        now.Sub(record.CreatedAt()),
		Inactivity: now.Sub(record.LastActivityAt()),
		Reason:     outcome.Reason,
	}
}

func (s *SessionStore) persist(record *SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.store.Set(s.cfg.GetSessionKey(), string(data))
}

func (s *SessionStore) recordEvent(eventType ActivityEventType, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.sink)
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}
	if err := sink.Record(event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
