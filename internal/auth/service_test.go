package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/lavente-auth/authcore/internal/audit"
	"github.com/lavente-auth/authcore/internal/keymanager"
	"github.com/lavente-auth/authcore/internal/session"
	"github.com/lavente-auth/authcore/internal/token"
	"github.com/lavente-auth/authcore/internal/user"
)

type fakeKeySource struct{ kp *keymanager.KeyPair }

func newFakeKeySource(t *testing.T) *fakeKeySource {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &fakeKeySource{kp: &keymanager.KeyPair{
		KeyID: "k1", Algorithm: keymanager.PS256,
		PublicKey: &priv.PublicKey, PrivateKey: priv, IsActive: true,
	}}
}

func (f *fakeKeySource) GetActiveKey() (*keymanager.KeyPair, error) { return f.kp, nil }
func (f *fakeKeySource) GetVerificationKey(id string) (*keymanager.KeyPair, error) {
	if id != f.kp.KeyID {
		return nil, keymanager.ErrUnknownKey
	}
	return f.kp, nil
}
func (f *fakeKeySource) MarkUsed(string) {}

func newTestService(t *testing.T) (*Service, user.Repository, session.Store) {
	t.Helper()
	users := user.NewMemoryRepository()
	sessions := session.NewMemoryStore()
	tokens := token.NewService(newFakeKeySource(t), token.Config{Issuer: "authcore", Audience: "authcore-api"})
	auditLog := audit.NewLogger(audit.NewMemoryLog(false), nil)
	mfa := NewMFAService("authcore")
	svc := NewService(users, sessions, tokens, auditLog, NewBcryptHasher(), mfa, nil)
	return svc, users, sessions
}

func seedUser(t *testing.T, users user.Repository, password string) *user.User {
	t.Helper()
	hash, err := NewBcryptHasher().Hash(password)
	require.NoError(t, err)
	u := &user.User{ID: "user-1", Email: "ada@example.com", Name: "Ada", PasswordHash: hash, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, users.Save(context.Background(), u))
	return u
}

func TestLoginSucceedsWithCorrectCredentials(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "correct horse battery staple")

	res, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "correct horse battery staple"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.SessionID)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "correct horse battery staple")

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsUnknownUserWithSameError(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")
	u.IsActive = false
	require.NoError(t, users.Save(context.Background(), u))

	_, err := svc.Login(context.Background(), LoginRequest{Email: u.Email, Password: "pw"})
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestLoginRejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), LoginRequest{Email: "not-an-email", Password: "x"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestLoginRememberMeExtendsSessionExpiry(t *testing.T) {
	svc, users, sessions := newTestService(t)
	seedUser(t, users, "pw")

	res, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "pw", RememberMe: true})
	require.NoError(t, err)

	sess, err := sessions.FindByID(context.Background(), res.SessionID)
	require.NoError(t, err)
	require.True(t, sess.ExpiresAt.After(time.Now().Add(24*time.Hour)))
}

func TestLogoutSpecificSessionRequiresOwnership(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "pw")
	res, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Logout(context.Background(), "someone-else", res.SessionID, false, token.ClientContext{})
	require.ErrorIs(t, err, ErrSessionNotFound)

	out, err := svc.Logout(context.Background(), "user-1", res.SessionID, false, token.ClientContext{})
	require.NoError(t, err)
	require.Equal(t, 1, out.SessionsRevoked)
}

func TestLogoutRevokeAllSessions(t *testing.T) {
	svc, users, _ := newTestService(t)
	seedUser(t, users, "pw")
	_, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)

	out, err := svc.Logout(context.Background(), "user-1", "", true, token.ClientContext{})
	require.NoError(t, err)
	require.Equal(t, 2, out.SessionsRevoked)
}

func TestCompleteStepUpWithValidTOTPCode(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")
	u.MFAEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	require.NoError(t, users.Save(context.Background(), u))

	code, err := totp.GenerateCode(u.TOTPSecret, time.Now())
	require.NoError(t, err)

	signed, err := svc.CompleteStepUp(context.Background(), "sess-1", u.ID, code, []string{"mfa:reset"}, token.ClientContext{})
	require.NoError(t, err)
	require.NotEmpty(t, signed)
}

func TestCompleteStepUpWithBackupCode(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")
	u.MFAEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	u.BackupCodes = []user.BackupCode{{CodeHash: hashBackupCode("ABCD-2345")}}
	require.NoError(t, users.Save(context.Background(), u))

	signed, err := svc.CompleteStepUp(context.Background(), "sess-1", u.ID, "ABCD-2345", nil, token.ClientContext{})
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	reloaded, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.BackupCodes[0].ConsumedAt)

	_, err = svc.CompleteStepUp(context.Background(), "sess-1", u.ID, "ABCD-2345", nil, token.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestCompleteStepUpRejectsInvalidCode(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")
	u.MFAEnabled = true
	u.TOTPSecret = "JBSWY3DPEHPK3PXP"
	require.NoError(t, users.Save(context.Background(), u))

	_, err := svc.CompleteStepUp(context.Background(), "sess-1", u.ID, "000000", nil, token.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestMFAEnrollmentStartThenCompleteEnablesMFA(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")

	start, err := svc.StartMFAEnrollment(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, start.Secret)
	require.Len(t, start.BackupCodes, 10)

	code, err := totp.GenerateCode(start.Secret, time.Now())
	require.NoError(t, err)

	err = svc.CompleteMFAEnrollment(context.Background(), u.ID, start.Secret, code, start.BackupCodes, token.ClientContext{})
	require.NoError(t, err)

	reloaded, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, reloaded.MFAEnabled)
	require.Equal(t, start.Secret, reloaded.TOTPSecret)
	require.Len(t, reloaded.BackupCodes, 10)

	signed, err := svc.CompleteStepUp(context.Background(), "sess-1", u.ID, start.BackupCodes[0], nil, token.ClientContext{})
	require.NoError(t, err)
	require.NotEmpty(t, signed)
}

func TestMFAEnrollmentCompleteRejectsWrongCode(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")

	start, err := svc.StartMFAEnrollment(context.Background(), u.ID)
	require.NoError(t, err)

	err = svc.CompleteMFAEnrollment(context.Background(), u.ID, start.Secret, "000000", start.BackupCodes, token.ClientContext{})
	require.ErrorIs(t, err, ErrInvalidCode)

	reloaded, err := users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.False(t, reloaded.MFAEnabled)
}

func TestMFAEnrollmentRejectsWhenAlreadyEnabled(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := seedUser(t, users, "pw")
	u.MFAEnabled = true
	require.NoError(t, users.Save(context.Background(), u))

	_, err := svc.StartMFAEnrollment(context.Background(), u.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}
