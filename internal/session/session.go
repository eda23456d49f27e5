// Package session maintains server-side session state: creation, JTI
// tracking across refresh rotations, risk-score updates, and revocation.
package session

import "time"

// Session is the server-side record a request's access/refresh tokens
// weakly reference via sid.
type Session struct {
	ID                string
	UserID            string
	TokenFamily       string
	AccessTokenJTI    string
	RefreshTokenJTI   string
	IPAddress         string
	IPHash            string
	UserAgent         string
	UserAgentHash     string
	DeviceFingerprint string
	Geolocation       string
	RiskScore         int
	IsActive          bool
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	RevokedReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Revoked reports whether the session has been explicitly revoked.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// Expired reports whether expiresAt has passed as of now. Exactly at
// expiresAt counts as expired.
func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Usable reports whether the session can be used to satisfy a request:
// active, not revoked, and not expired.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !s.Revoked() && !s.Expired(now)
}
