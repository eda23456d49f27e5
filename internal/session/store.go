package session

import (
	"context"
	"time"
)

// Store is the Session Store contract. Implementations must preserve
// the per-session ordering create → updateJTIs → updateLastActivity →
// revokeSession.
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)

	// FindByAccessTokenJTI returns only active, unrevoked, unexpired
	// sessions; it is used on the request-authorization hot path.
	FindByAccessTokenJTI(ctx context.Context, jti string) (*Session, error)

	// FindByRefreshTokenJTI may return a revoked session: the rotation
	// engine's reuse-detection check depends on seeing revoked matches
	// rather than a not-found.
	FindByRefreshTokenJTI(ctx context.Context, jti string) (*Session, error)

	FindActiveByUserID(ctx context.Context, userID string) ([]*Session, error)

	UpdateLastActivity(ctx context.Context, sessionID string, when time.Time) error
	UpdateRiskScore(ctx context.Context, sessionID string, score int) error
	UpdateJTIs(ctx context.Context, sessionID, accessJTI, refreshJTI string) error

	// RevokeSession is idempotent: revoking an already-revoked session is
	// a no-op that returns nil.
	RevokeSession(ctx context.Context, sessionID, reason string) error

	// TryRevokeSession is the conditional-update serialization point the
	// rotation engine uses to guarantee exactly one winner among
	// concurrent refreshes of the same session: it reports whether this
	// call actually performed the revoke (true) or the session was
	// already revoked by someone else (false).
	TryRevokeSession(ctx context.Context, sessionID, reason string) (bool, error)
	RevokeAllUserSessions(ctx context.Context, userID, reason string) (int, error)

	// RevokeByFamily revokes every active session sharing tokenFamily. This
	// is the primary reuse-detection response: it scopes the blast radius
	// to the compromised refresh chain instead of every device the user is
	// signed in on. Callers fall back to RevokeAllUserSessions only when
	// tokenFamily can't be resolved.
	RevokeByFamily(ctx context.Context, tokenFamily, reason string) (int, error)

	// CleanupExpiredSessions removes sessions with expiresAt < now
	// regardless of active/revoked state, and reports how many were
	// removed.
	CleanupExpiredSessions(ctx context.Context) (int, error)
}
