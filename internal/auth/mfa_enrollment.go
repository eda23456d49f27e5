package auth

import (
	"context"
	"errors"
	"time"

	"github.com/lavente-auth/authcore/internal/audit"
	"github.com/lavente-auth/authcore/internal/token"
	"github.com/lavente-auth/authcore/internal/user"
)

var ErrMFAAlreadyEnabled = errors.New("auth: mfa already enabled")

// MFAEnrollmentStart is the secret and backup codes a client must confirm
// possession of before MFA is turned on. Nothing is persisted yet.
type MFAEnrollmentStart struct {
	Secret      string
	QRCode      []byte
	BackupCodes []string
}

// StartMFAEnrollment generates a fresh TOTP secret and a batch of
// recovery codes for the user to confirm. Mirrors the teacher's
// SetupMFA: generation is side-effect-free until CompleteMFAEnrollment persists it.
func (s *Service) StartMFAEnrollment(ctx context.Context, userID string) (*MFAEnrollmentStart, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, qr, err := s.mfa.GenerateSecret(u.Email)
	if err != nil {
		return nil, err
	}
	codes, err := s.mfa.GenerateBackupCodes(10)
	if err != nil {
		return nil, err
	}

	return &MFAEnrollmentStart{Secret: key.Secret(), QRCode: qr, BackupCodes: codes}, nil
}

// CompleteMFAEnrollment validates code against secret (proving the user
// captured it correctly) and persists the secret plus hashed backup
// codes, enabling MFA. Mirrors the teacher's ActivateMFA.
func (s *Service) CompleteMFAEnrollment(ctx context.Context, userID, secret, code string, backupCodes []string, client token.ClientContext) error {
	if !s.mfa.ValidateCode(code, secret) {
		return ErrInvalidCode
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ErrInvalidCredentials
	}

	hashed := make([]user.BackupCode, 0, len(backupCodes))
	for _, raw := range backupCodes {
		hashed = append(hashed, user.BackupCode{CodeHash: hashBackupCode(raw)})
	}
	u.TOTPSecret = secret
	u.MFAEnabled = true
	u.BackupCodes = hashed
	u.UpdatedAt = time.Now()
	if err := s.users.Save(ctx, u); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		UserID: u.ID, EventType: audit.EventMFAEnabled,
		EventSeverity: audit.SeverityInfo, Result: audit.ResultSuccess,
		IPAddress: client.IP, UserAgent: client.UserAgent,
	})
	return nil
}
