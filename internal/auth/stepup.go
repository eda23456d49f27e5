package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/lavente-auth/authcore/internal/audit"
	"github.com/lavente-auth/authcore/internal/token"
)

// CompleteStepUp discharges the PDP's step-up obligation. It validates
// the submitted code against the user's TOTP secret or backup codes and,
// on success, mints a privileged token carrying scopes for the session.
func (s *Service) CompleteStepUp(ctx context.Context, sessionID, userID, code string, scopes []string, client token.ClientContext) (string, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !u.MFAEnabled {
		return "", ErrStepUpRequired
	}

	if s.mfa.ValidateCode(code, u.TOTPSecret) {
		return s.issuePrivileged(ctx, u.ID, u.Email, u.Name, sessionID, scopes, client)
	}

	if matched := matchesBackupCode(code, u.ActiveBackupCodeHashes()); matched != "" {
		if err := s.users.ConsumeBackupCode(ctx, u.ID, matched); err != nil {
			return "", err
		}
		return s.issuePrivileged(ctx, u.ID, u.Email, u.Name, sessionID, scopes, client)
	}

	s.audit.Record(ctx, audit.Event{
		UserID: u.ID, SessionID: sessionID, EventType: audit.EventStepUpRequired,
		EventSeverity: audit.SeverityWarning, Result: audit.ResultDenied,
		IPAddress: client.IP, UserAgent: client.UserAgent,
	})
	return "", ErrInvalidCode
}

func (s *Service) issuePrivileged(ctx context.Context, userID, email, name, sessionID string, scopes []string, client token.ClientContext) (string, error) {
	signed, _, err := s.tokens.SignPrivileged(userID, email, name, sessionID, &token.ClientContext{IP: client.IP, UserAgent: client.UserAgent}, scopes)
	if err != nil {
		return "", err
	}
	s.audit.Record(ctx, audit.Event{
		UserID: userID, SessionID: sessionID, EventType: audit.EventStepUpCompleted,
		EventSeverity: audit.SeverityInfo, Result: audit.ResultSuccess,
		IPAddress: client.IP, UserAgent: client.UserAgent,
		Metadata: map[string]any{"scopes": scopes},
	})
	return signed, nil
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// matchesBackupCode reports which stored hash, if any, matches code. The
// empty string means no match; callers must distinguish that from a match
// at index 0 by checking for "".
func matchesBackupCode(code string, hashes []string) string {
	target := hashBackupCode(code)
	for _, h := range hashes {
		if token.SecureCompareTokens(h, target) {
			return h
		}
	}
	return ""
}
