// Package audit implements the append-only security event log.
package audit

import "time"

type EventType string

const (
	EventUserLogin          EventType = "user_login"
	EventUserLogout         EventType = "user_logout"
	EventUserRegister       EventType = "user_register"
	EventPasswordChange     EventType = "password_change"
	EventTokenRefresh       EventType = "token_refresh"
	EventTokenRevoked       EventType = "token_revoked"
	EventSessionCreated     EventType = "session_created"
	EventSessionRevoked     EventType = "session_revoked"
	EventPermissionDenied   EventType = "permission_denied"
	EventStepUpRequired     EventType = "step_up_required"
	EventStepUpCompleted    EventType = "step_up_completed"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventAccountLocked      EventType = "account_locked"
	EventAccountUnlocked    EventType = "account_unlocked"
	EventMFAEnabled         EventType = "mfa_enabled"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Event is a single append-only audit record. EventHash and
// PreviousEventHash are populated by the Log implementation, never by the
// caller.
type Event struct {
	ID                string
	UserID            string
	SessionID         string
	EventType         EventType
	EventSeverity     Severity
	IPAddress         string
	UserAgent         string
	Resource          string
	Action            string
	Result            Result
	Metadata          map[string]any
	RiskIndicators    map[string]any
	EventHash         string
	PreviousEventHash string
	CreatedAt         time.Time
}
