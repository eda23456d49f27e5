// Package rotation implements the refresh-token rotation engine:
// single-use refresh tokens, atomic rotation, and family-wide revocation
// on reuse detection.
package rotation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lavente-auth/authcore/internal/audit"
	"github.com/lavente-auth/authcore/internal/session"
	"github.com/lavente-auth/authcore/internal/token"
	"github.com/lavente-auth/authcore/internal/user"
)

var (
	ErrInvalidRefresh = errors.New("rotation: invalid refresh token")
	ErrTokenReuse     = errors.New("rotation: refresh token reuse detected")
	ErrSessionExpired = errors.New("rotation: session expired")
	ErrUserNotFound   = errors.New("rotation: user not found or inactive")
)

// Engine wires the token service, session store, and audit log together
// to implement refresh-token rotation with reuse detection.
type Engine struct {
	tokens   *token.Service
	sessions session.Store
	users    user.Repository
	audit    *audit.Logger
	log      *slog.Logger
}

func NewEngine(tokens *token.Service, sessions session.Store, users user.Repository, auditLog *audit.Logger, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{tokens: tokens, sessions: sessions, users: users, audit: auditLog, log: log}
}

// Result is the new token pair and session issued by a successful
// rotation.
type Result struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	SessionID             string
}

// Refresh implements the full algorithm: verify, reuse-detect, rotate.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, client token.ClientContext) (*Result, error) {
	claims, err := e.tokens.Verify(refreshToken, token.VerifyOptions{ExpectType: token.TypeRefresh})
	if err != nil {
		e.audit.Record(ctx, audit.Event{
			EventType: audit.EventTokenRefresh, EventSeverity: audit.SeverityCritical,
			Result: audit.ResultFailure, IPAddress: client.IP, UserAgent: client.UserAgent,
			Metadata: map[string]any{"reason": "verify_failed"},
		})
		if errors.Is(err, token.ErrUnknownKey) {
			return nil, token.ErrUnknownKey
		}
		return nil, ErrInvalidRefresh
	}

	sess, err := e.sessions.FindByRefreshTokenJTI(ctx, claims.JTI)
	if err != nil {
		e.audit.Record(ctx, audit.Event{
			UserID: claims.UserID, EventType: audit.EventTokenRefresh, EventSeverity: audit.SeverityCritical,
			Result: audit.ResultFailure, IPAddress: client.IP, UserAgent: client.UserAgent,
			Metadata: map[string]any{"reason": "session_not_found"},
		})
		return nil, ErrInvalidRefresh
	}

	if !sess.IsActive || sess.Revoked() {
		e.handleReuse(ctx, sess, claims, client)
		return nil, ErrTokenReuse
	}

	if sess.Expired(time.Now()) {
		e.audit.Record(ctx, audit.Event{
			UserID: claims.UserID, SessionID: sess.ID, EventType: audit.EventTokenRefresh,
			EventSeverity: audit.SeverityWarning, Result: audit.ResultFailure,
			IPAddress: client.IP, UserAgent: client.UserAgent,
			Metadata: map[string]any{"reason": "session_expired"},
		})
		return nil, ErrSessionExpired
	}

	u, err := e.users.FindByID(ctx, claims.UserID)
	if err != nil || !u.IsActive {
		e.audit.Record(ctx, audit.Event{
			UserID: claims.UserID, SessionID: sess.ID, EventType: audit.EventTokenRefresh,
			EventSeverity: audit.SeverityWarning, Result: audit.ResultFailure,
			IPAddress: client.IP, UserAgent: client.UserAgent,
		})
		return nil, ErrUserNotFound
	}

	_ = e.sessions.UpdateLastActivity(ctx, sess.ID, time.Now())

	// Serialization point: exactly one concurrent Refresh call can win
	// this conditional update.
	won, err := e.sessions.TryRevokeSession(ctx, sess.ID, "token_rotation")
	if err != nil {
		return nil, err
	}
	if !won {
		e.handleReuse(ctx, sess, claims, client)
		return nil, ErrTokenReuse
	}

	newSessionID := uuid.NewString()
	accessSigned, accessClaims, err := e.tokens.SignAccess(u.ID, u.Email, u.Name, newSessionID, &token.ClientContext{IP: client.IP, UserAgent: client.UserAgent}, token.BindingSoft)
	if err != nil {
		return nil, err
	}
	refreshSigned, refreshClaims, err := e.tokens.SignRefresh(u.ID, newSessionID, claims.TokenFamily)
	if err != nil {
		return nil, err
	}

	newSession := &session.Session{
		ID:                newSessionID,
		UserID:            u.ID,
		TokenFamily:       refreshClaims.TokenFamily,
		AccessTokenJTI:    accessClaims.JTI,
		RefreshTokenJTI:   refreshClaims.JTI,
		IPAddress:         client.IP,
		IPHash:            token.HashBinding(client.IP),
		UserAgent:         client.UserAgent,
		UserAgentHash:     token.HashBinding(client.UserAgent),
		DeviceFingerprint: sess.DeviceFingerprint,
		Geolocation:       sess.Geolocation,
		RiskScore:         sess.RiskScore,
		IsActive:          true,
		LastActivityAt:    time.Now(),
		ExpiresAt:         refreshClaims.ExpiresAt,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := e.sessions.Create(ctx, newSession); err != nil {
		return nil, err
	}

	e.audit.Record(ctx, audit.Event{
		UserID: u.ID, SessionID: newSession.ID, EventType: audit.EventTokenRefresh,
		EventSeverity: audit.SeverityInfo, Result: audit.ResultSuccess,
		IPAddress: client.IP, UserAgent: client.UserAgent,
		Metadata: map[string]any{"tokenFamily": claims.TokenFamily, "previousSessionId": sess.ID},
	})
	e.audit.Record(ctx, audit.Event{
		UserID: u.ID, SessionID: newSession.ID, EventType: audit.EventSessionCreated,
		EventSeverity: audit.SeverityInfo, Result: audit.ResultSuccess,
		IPAddress: client.IP, UserAgent: client.UserAgent,
	})

	return &Result{
		AccessToken:           accessSigned,
		RefreshToken:          refreshSigned,
		AccessTokenExpiresAt:  accessClaims.ExpiresAt,
		RefreshTokenExpiresAt: refreshClaims.ExpiresAt,
		SessionID:             newSession.ID,
	}, nil
}

// handleReuse revokes every active session in the token family on reuse
// detection, falling back to all of the user's active sessions only when
// the family can't be resolved from either the stored session or the
// presented claims.
func (e *Engine) handleReuse(ctx context.Context, sess *session.Session, claims token.Result, client token.ClientContext) {
	family := sess.TokenFamily
	if family == "" {
		family = claims.TokenFamily
	}

	var (
		revoked int
		err     error
		scope   = "family"
	)
	if family != "" {
		revoked, err = e.sessions.RevokeByFamily(ctx, family, "token_reuse_detected")
	} else {
		scope = "user"
		revoked, err = e.sessions.RevokeAllUserSessions(ctx, sess.UserID, "token_reuse_detected")
	}
	if err != nil {
		e.log.Error("rotation_reuse_revocation_failed", "user_id", sess.UserID, "token_family", family, "error", err)
	}
	e.audit.Record(ctx, audit.Event{
		UserID: sess.UserID, SessionID: sess.ID, EventType: audit.EventSuspiciousActivity,
		EventSeverity: audit.SeverityCritical, Result: audit.ResultDenied,
		IPAddress: client.IP, UserAgent: client.UserAgent,
		Metadata:       map[string]any{"reason": "refresh_token_reuse", "tokenFamily": claims.TokenFamily, "revocationScope": scope, "sessionsRevoked": revoked},
		RiskIndicators: map[string]any{"reuse": true},
	})
}
