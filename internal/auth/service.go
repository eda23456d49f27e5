// Package auth implements the Login/Logout Orchestrator: it wires
// password verification, session creation, and token issuance, and emits
// the corresponding audit events.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/lavente-auth/authcore/internal/audit"
	"github.com/lavente-auth/authcore/internal/session"
	"github.com/lavente-auth/authcore/internal/token"
	"github.com/lavente-auth/authcore/internal/user"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	rememberMeSessionTTL = 7 * 24 * time.Hour
)

// Service is the Login/Logout Orchestrator.
type Service struct {
	users    user.Repository
	sessions session.Store
	tokens   *token.Service
	audit    *audit.Logger
	hasher   PasswordHasher
	mfa      *MFAService
	log      *slog.Logger
}

func NewService(users user.Repository, sessions session.Store, tokens *token.Service, auditLog *audit.Logger, hasher PasswordHasher, mfa *MFAService, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	return &Service{users: users, sessions: sessions, tokens: tokens, audit: auditLog, hasher: hasher, mfa: mfa, log: log}
}

// LoginRequest carries everything login() needs beyond
// credentials.
type LoginRequest struct {
	Email             string
	Password          string
	RememberMe        bool
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}

// LoginResult is the login() response shape from
type LoginResult struct {
	User                  *user.User
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	SessionID             string
}

// Login verifies credentials, then creates a session and token
// pair. Failure reasons collapse to ErrInvalidCredentials or
// ErrAccountDeactivated/ErrValidation; audit records the real reason.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, ErrValidation
	}

	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		s.recordFailure(ctx, "", req, "unknown_user")
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.recordFailure(ctx, u.ID, req, "account_deactivated")
		return nil, ErrAccountDeactivated
	}
	if u.PasswordHash == "" {
		s.recordFailure(ctx, u.ID, req, "missing_password_hash")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, req.Password); err != nil {
		s.recordFailure(ctx, u.ID, req, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	ttl := defaultSessionTTL
	if req.RememberMe {
		ttl = rememberMeSessionTTL
	}
	now := time.Now()
	sessionID := uuid.NewString()

	accessSigned, accessClaims, err := s.tokens.SignAccess(u.ID, u.Email, u.Name, sessionID,
		&token.ClientContext{IP: req.IPAddress, UserAgent: req.UserAgent}, token.BindingSoft)
	if err != nil {
		return nil, err
	}
	refreshSigned, refreshClaims, err := s.tokens.SignRefresh(u.ID, sessionID, "")
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(ttl)
	if refreshClaims.ExpiresAt.Before(expiresAt) {
		expiresAt = refreshClaims.ExpiresAt
	}

	sess := &session.Session{
		ID:                sessionID,
		UserID:            u.ID,
		TokenFamily:       refreshClaims.TokenFamily,
		AccessTokenJTI:    accessClaims.JTI,
		RefreshTokenJTI:   refreshClaims.JTI,
		IPAddress:         req.IPAddress,
		IPHash:            token.HashBinding(req.IPAddress),
		UserAgent:         req.UserAgent,
		UserAgentHash:     token.HashBinding(req.UserAgent),
		DeviceFingerprint: req.DeviceFingerprint,
		RiskScore:         0,
		IsActive:          true,
		LastActivityAt:    now,
		ExpiresAt:         expiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		UserID: u.ID, SessionID: sessionID, EventType: audit.EventUserLogin,
		EventSeverity: audit.SeverityInfo, Result: audit.ResultSuccess,
		IPAddress: req.IPAddress, UserAgent: req.UserAgent,
	})

	return &LoginResult{
		User:                  u,
		AccessToken:           accessSigned,
		RefreshToken:          refreshSigned,
		AccessTokenExpiresAt:  accessClaims.ExpiresAt,
		RefreshTokenExpiresAt: refreshClaims.ExpiresAt,
		SessionID:             sessionID,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, userID string, req LoginRequest, reason string) {
	s.audit.Record(ctx, audit.Event{
		UserID: userID, EventType: audit.EventUserLogin, EventSeverity: audit.SeverityWarning,
		Result: audit.ResultFailure, IPAddress: req.IPAddress, UserAgent: req.UserAgent,
		Metadata: map[string]any{"reason": reason},
	})
}

// LogoutResult is the logout() response shape from
type LogoutResult struct {
	Success         bool
	SessionsRevoked int
	Message         string
}

// Logout revokes either one session (verified to belong to callerUserID)
// or every session the user owns.
func (s *Service) Logout(ctx context.Context, callerUserID, sessionID string, revokeAll bool, client token.ClientContext) (*LogoutResult, error) {
	var (
		revoked int
		err     error
	)

	if revokeAll {
		revoked, err = s.sessions.RevokeAllUserSessions(ctx, callerUserID, "user_logout")
	} else {
		var sess *sessionLookup
		sess, err = s.lookupOwnedSession(ctx, callerUserID, sessionID)
		if err == nil {
			err = s.sessions.RevokeSession(ctx, sess.ID, "user_logout")
			if err == nil {
				revoked = 1
			}
		}
	}

	s.audit.Record(ctx, audit.Event{
		UserID: callerUserID, SessionID: sessionID, EventType: audit.EventUserLogout,
		EventSeverity: audit.SeverityInfo, Result: resultFor(err),
		IPAddress: client.IP, UserAgent: client.UserAgent,
		Metadata: map[string]any{"revokeAll": revokeAll, "sessionsRevoked": revoked},
	})

	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}

	return &LogoutResult{Success: true, SessionsRevoked: revoked, Message: "logged out"}, nil
}

func resultFor(err error) audit.Result {
	if err != nil {
		return audit.ResultFailure
	}
	return audit.ResultSuccess
}

type sessionLookup struct{ ID string }

// lookupOwnedSession verifies sessionID belongs to callerUserID. A session
// that does not belong to the caller looks identical to a missing one:
// the HTTP layer maps ErrSessionNotFound to 404 either way.
func (s *Service) lookupOwnedSession(ctx context.Context, callerUserID, sessionID string) (*sessionLookup, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil || sess.UserID != callerUserID {
		return nil, ErrSessionNotFound
	}
	return &sessionLookup{ID: sess.ID}, nil
}
