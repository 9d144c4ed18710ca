package session

import "time"

// ActivityEventType enumerates supported lifecycle event categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess    ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure    ActivityEventType = "auth.login.failure"
	ActivityEventLogout          ActivityEventType = "auth.logout"
	ActivityEventSessionTimeout  ActivityEventType = "session.timeout"
	ActivityEventSessionMigrated ActivityEventType = "session.migrated"
)

// ActivityEvent captures audit-friendly information about a lifecycle
// action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Reason     ValidationReason
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged, never propagated.
type ActivitySink interface {
	Record(event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
