// Package user holds the minimal account record the rest of the system
// treats as an external repository dependency: the login orchestrator
// authenticates against it, the risk engine reads account and password
// age from it, and the permission engine reads security level and
// attributes from it.
package user

import "time"

// User is the account record shared across components. Fields beyond
// authentication (Attributes, SecurityLevel, KnownDeviceHashes) exist purely
// to support ABAC conditions and risk scoring.
type User struct {
	ID                string
	Email             string
	Name              string
	PasswordHash      string
	IsActive          bool
	SecurityLevel     int
	Attributes        map[string]string
	KnownDeviceHashes []string
	MFAEnabled        bool
	TOTPSecret        string
	BackupCodes       []BackupCode
	CreatedAt         time.Time
	PasswordChangedAt time.Time
	UpdatedAt         time.Time
}

// BackupCode is a single-use MFA recovery code. ConsumedAt is nil until
// the code is spent; a consumed code can never match again.
type BackupCode struct {
	CodeHash   string     `json:"codeHash"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}

// ActiveBackupCodeHashes returns the hashes of codes that have not yet
// been consumed.
func (u *User) ActiveBackupCodeHashes() []string {
	var out []string
	for _, c := range u.BackupCodes {
		if c.ConsumedAt == nil {
			out = append(out, c.CodeHash)
		}
	}
	return out
}

// HasKnownDevice reports whether fingerprint matches a device previously
// seen for this user.
func (u *User) HasKnownDevice(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	for _, h := range u.KnownDeviceHashes {
		if h == fingerprint {
			return true
		}
	}
	return false
}
