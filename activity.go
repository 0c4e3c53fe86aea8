package fintrack

import (
	"context"
	"time"
)

// ActivityEventType identifies a session lifecycle event.
type ActivityEventType string

const (
	ActivityEventLoginSuccess    ActivityEventType = "session.login.success"
	ActivityEventLoginFailure    ActivityEventType = "session.login.failure"
	ActivityEventRegistered      ActivityEventType = "session.registered"
	ActivityEventLogout          ActivityEventType = "session.logout"
	ActivityEventTokenRefreshed  ActivityEventType = "session.token.refreshed"
	ActivityEventPasswordChanged ActivityEventType = "session.password.changed"
	ActivityEventPasswordLinked  ActivityEventType = "session.password.linked"
	ActivityEventStateChanged    ActivityEventType = "session.state.changed"
)

// ActivityEvent is emitted for auditing/metrics hooks in hosts.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromState  SessionState
	ToState    SessionState
	OccurredAt time.Time
	Metadata   map[string]any
}

// ActivitySink receives session events. Record failures are logged and
// swallowed; a sink must never block a session operation.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(sink ActivitySink) ActivitySink {
	if sink == nil {
		return noopActivitySink{}
	}
	return sink
}
