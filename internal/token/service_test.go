package token

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lavente-auth/authcore/internal/keymanager"
)

type fakeKeySource struct {
	active *keymanager.KeyPair
	byID   map[string]*keymanager.KeyPair
	used   []string
}

func newFakeKeySource(t *testing.T) *fakeKeySource {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	kp := &keymanager.KeyPair{
		KeyID:      "test-key-1",
		Algorithm:  keymanager.PS256,
		PublicKey:  &priv.PublicKey,
		PrivateKey: priv,
		CreatedAt:  time.Now(),
		IsActive:   true,
	}
	return &fakeKeySource{
		active: kp,
		byID:   map[string]*keymanager.KeyPair{kp.KeyID: kp},
	}
}

func (f *fakeKeySource) GetActiveKey() (*keymanager.KeyPair, error) { return f.active, nil }

func (f *fakeKeySource) GetVerificationKey(keyID string) (*keymanager.KeyPair, error) {
	kp, ok := f.byID[keyID]
	if !ok {
		return nil, keymanager.ErrUnknownKey
	}
	return kp, nil
}

func (f *fakeKeySource) MarkUsed(keyID string) { f.used = append(f.used, keyID) }

func TestSignAndVerifyAccessToken(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{Issuer: "authcore", Audience: "authcore-api"})

	signed, claims, err := svc.SignAccess("user-1", "a@example.com", "Ada", "sess-1", &ClientContext{IP: "1.2.3.4", UserAgent: "curl/8"}, BindingStrict)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	require.Equal(t, BindingStrict, claims.BindingLevel)

	res, err := svc.Verify(signed, VerifyOptions{
		ExpectType: TypeAccess,
		Client:     &ClientContext{IP: "1.2.3.4", UserAgent: "curl/8"},
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", res.UserID)
	require.Equal(t, "sess-1", res.SessionID)
	require.False(t, res.SoftBindingMismatch)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{})
	signed, _, err := svc.SignRefresh("user-1", "sess-1", "")
	require.NoError(t, err)

	_, err = svc.Verify(signed, VerifyOptions{ExpectType: TypeAccess})
	require.ErrorIs(t, err, ErrWrongType)
}

func TestVerifyStrictBindingMismatchFails(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{})
	signed, _, err := svc.SignAccess("user-1", "a@example.com", "Ada", "sess-1", &ClientContext{IP: "1.2.3.4", UserAgent: "curl/8"}, BindingStrict)
	require.NoError(t, err)

	_, err = svc.Verify(signed, VerifyOptions{
		ExpectType: TypeAccess,
		Client:     &ClientContext{IP: "9.9.9.9", UserAgent: "curl/8"},
	})
	require.ErrorIs(t, err, ErrBindingMismatch)
}

func TestVerifySoftBindingMismatchSucceedsButFlags(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{})
	signed, _, err := svc.SignAccess("user-1", "a@example.com", "Ada", "sess-1", &ClientContext{IP: "1.2.3.4", UserAgent: "curl/8"}, BindingSoft)
	require.NoError(t, err)

	res, err := svc.Verify(signed, VerifyOptions{
		ExpectType: TypeAccess,
		Client:     &ClientContext{IP: "9.9.9.9", UserAgent: "curl/8"},
	})
	require.NoError(t, err)
	require.True(t, res.SoftBindingMismatch)
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{AccessTTL: time.Millisecond, ClockSkew: time.Nanosecond})
	signed, _, err := svc.SignAccess("user-1", "a@example.com", "Ada", "sess-1", nil, BindingDisabled)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	_, err = svc.Verify(signed, VerifyOptions{ExpectType: TypeAccess})
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyUnknownKeyID(t *testing.T) {
	ks := newFakeKeySource(t)
	svc := NewService(ks, Config{})
	signed, _, err := svc.SignAccess("user-1", "a@example.com", "Ada", "sess-1", nil, BindingDisabled)
	require.NoError(t, err)

	delete(ks.byID, ks.active.KeyID)
	_, err = svc.Verify(signed, VerifyOptions{ExpectType: TypeAccess})
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestSignRefreshPreservesFamilyAcrossRotation(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{})
	_, first, err := svc.SignRefresh("user-1", "sess-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, first.TokenFamily)

	_, second, err := svc.SignRefresh("user-1", "sess-1", first.TokenFamily)
	require.NoError(t, err)
	require.Equal(t, first.TokenFamily, second.TokenFamily)
	require.NotEqual(t, first.JTI, second.JTI)
}

func TestSignPrivilegedIsAlwaysStrictBound(t *testing.T) {
	svc := NewService(newFakeKeySource(t), Config{})
	_, claims, err := svc.SignPrivileged("user-1", "a@example.com", "Ada", "sess-1", &ClientContext{IP: "1.2.3.4", UserAgent: "curl/8"}, []string{"mfa:reset"})
	require.NoError(t, err)
	require.Equal(t, BindingStrict, claims.BindingLevel)
	require.Equal(t, []string{"mfa:reset"}, claims.Scopes)
}
