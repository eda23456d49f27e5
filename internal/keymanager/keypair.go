// Package keymanager owns the lifecycle of RSA signing keys: generation,
// on-disk persistence, rotation with a verification grace window, and JWKS
// export. Private key material never leaves this package.
package keymanager

import (
	"crypto/rsa"
	"time"
)

// Algorithm identifies the signature algorithm a key pair is used with.
type Algorithm string

const (
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// State classifies a KeyPair's position in its signing lifecycle.
type State string

const (
	StateActive          State = "active"
	StateGrace           State = "grace"
	StateRestartTolerant State = "restart-tolerant"
	StateExpired         State = "expired"
)

// KeyPair is one RSA signing key and its lifecycle metadata. At most one
// KeyPair held by a Manager has IsActive set at any instant.
type KeyPair struct {
	KeyID            string
	Algorithm        Algorithm
	PublicKey        *rsa.PublicKey
	PrivateKey       *rsa.PrivateKey
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	IsActive         bool
	GracePeriodUntil *time.Time

	// LastUsed records the last time this key verified or signed a token;
	// persisted in index.json for observability, never load-bearing.
	LastUsed time.Time
}

// State computes the current lifecycle state of the key relative to now.
// It does not mutate the KeyPair; callers needing a transition call Manager
// methods instead.
func (k *KeyPair) State(now time.Time) State {
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return StateExpired
	}
	if k.IsActive {
		return StateActive
	}
	if k.GracePeriodUntil != nil && now.Before(*k.GracePeriodUntil) {
		return StateGrace
	}
	return StateRestartTolerant
}

// CanSign reports whether this key may be used to sign new tokens.
func (k *KeyPair) CanSign(now time.Time) bool {
	return k.State(now) == StateActive
}

// CanVerify reports whether this key may still verify previously-issued
// tokens. Restart-tolerant verification is a deliberate trade-off: any
// non-expired persisted key verifies, so a server restart does not force
// every in-flight access token to fail, at the cost of a slightly longer
// acceptance window than a stricter design would allow.
func (k *KeyPair) CanVerify(now time.Time) bool {
	s := k.State(now)
	return s == StateActive || s == StateGrace || s == StateRestartTolerant
}

// HardGraceElapsed reports whether the key is past its 7-day hard grace
// period after expiry and therefore eligible for purge by the cleanup sweep.
func (k *KeyPair) HardGraceElapsed(now time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return now.After(k.ExpiresAt.Add(hardGraceWindow))
}

const hardGraceWindow = 7 * 24 * time.Hour
