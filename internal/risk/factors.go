package risk

import (
	"context"
	"net"
	"time"
)

// FactorKey names one of the nine weighted inputs to the score
//.
type FactorKey string

const (
	FactorIPReputation      FactorKey = "ipReputation"
	FactorGeolocation       FactorKey = "geolocationAnomaly"
	FactorTimeOfDay         FactorKey = "timeOfDay"
	FactorUserHistory       FactorKey = "userHistory"
	FactorDeviceFingerprint FactorKey = "deviceFingerprint"
	FactorSessionAnomaly    FactorKey = "sessionAnomaly"
	FactorFailedAttempts    FactorKey = "failedAttempts"
	FactorAccountAge        FactorKey = "accountAge"
	FactorPasswordAge       FactorKey = "passwordAge"
)

// weights sums to 1.0.
var weights = map[FactorKey]float64{
	FactorIPReputation:      0.20,
	FactorGeolocation:       0.15,
	FactorTimeOfDay:         0.10,
	FactorUserHistory:       0.20,
	FactorDeviceFingerprint: 0.10,
	FactorSessionAnomaly:    0.15,
	FactorFailedAttempts:    0.05,
	FactorAccountAge:        0.025,
	FactorPasswordAge:       0.025,
}

// Input is everything the nine factors read. Fields that don't apply to a
// given call (e.g. no active session yet at login time) are left zero.
type Input struct {
	UserID              string
	IP                  string
	Country             string
	UserRecentCountries []string

	DeviceFingerprint string
	KnownDevice       bool
	HasAnyKnownDevice bool

	SessionIPAddress string
	SessionUserAgent string
	SessionCreatedAt time.Time
	CurrentUserAgent string
	HasActiveSession bool

	RecentWarningOrCriticalEvents int

	AccountCreatedAt  time.Time
	PasswordChangedAt time.Time

	Now time.Time
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// scoreIPReputation: private/loopback low; configured bad ranges very
// high; a previously recorded reputation score if present; otherwise low.
func (e *Engine) scoreIPReputation(ctx context.Context, in Input) int {
	ip := net.ParseIP(in.IP)
	if ip == nil {
		return 60
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return 5
	}
	for _, bad := range e.knownBadRanges {
		if bad.Contains(ip) {
			return 95
		}
	}
	if score, found, err := e.counters.IPReputationScore(ctx, in.IP); err == nil && found {
		return clampScore(score)
	}
	return 15
}

// scoreGeolocation: unknown low-medium; configured high-risk country very
// high; a country not among the user's recently seen ones medium-high.
func (e *Engine) scoreGeolocation(in Input) int {
	if in.Country == "" {
		return 30
	}
	if e.highRiskCountries[in.Country] {
		return 90
	}
	if len(in.UserRecentCountries) > 0 && !containsString(in.UserRecentCountries, in.Country) {
		return 65
	}
	return 10
}

// scoreTimeOfDay: 03:00-05:00 high, 18:00-02:59 medium, otherwise low.
func scoreTimeOfDay(now time.Time) int {
	hour := now.Hour()
	switch {
	case hour >= 3 && hour < 5:
		return 80
	case hour >= 18 || hour < 3:
		return 50
	default:
		return 10
	}
}

// scoreUserHistory: recent failed logins (capped at 5, 10 points each)
// plus recent warning/critical audit events (capped at 15 points each, up
// to 4 counted).
func (e *Engine) scoreUserHistory(ctx context.Context, in Input) int {
	failed, _ := e.counters.RecentFailedLogins(ctx, in.UserID)
	failedScore := minInt(failed, 5) * 10
	eventScore := minInt(in.RecentWarningOrCriticalEvents, 4) * 15
	return clampScore(failedScore + eventScore)
}

// scoreDeviceFingerprint: unseen device medium-high; known device low;
// the very first device the account ever registers medium.
func scoreDeviceFingerprint(in Input) int {
	if in.DeviceFingerprint == "" {
		return 60
	}
	if in.KnownDevice {
		return 10
	}
	if !in.HasAnyKnownDevice {
		return 50
	}
	return 75
}

// scoreSessionAnomaly: +40 different IP, +30 different user agent, +20 for
// a session older than 30 days.
func scoreSessionAnomaly(in Input) int {
	if !in.HasActiveSession {
		return 0
	}
	score := 0
	if in.SessionIPAddress != in.IP {
		score += 40
	}
	if in.SessionUserAgent != in.CurrentUserAgent {
		score += 30
	}
	if !in.SessionCreatedAt.IsZero() && in.Now.Sub(in.SessionCreatedAt) > 30*24*time.Hour {
		score += 20
	}
	return clampScore(score)
}

// scoreFailedAttempts: 1 -> 50, 3 -> 80, 5 -> 100.
func (e *Engine) scoreFailedAttempts(ctx context.Context, in Input) int {
	count, _ := e.counters.RecentFailedLogins(ctx, in.UserID)
	switch {
	case count >= 5:
		return 100
	case count >= 3:
		return 80
	case count >= 1:
		return 50
	default:
		return 0
	}
}

// scoreAccountAge: newer accounts score higher.
func scoreAccountAge(in Input) int {
	if in.AccountCreatedAt.IsZero() {
		return 5
	}
	age := in.Now.Sub(in.AccountCreatedAt)
	switch {
	case age < 24*time.Hour:
		return 80
	case age < 7*24*time.Hour:
		return 60
	case age < 30*24*time.Hour:
		return 40
	case age < 90*24*time.Hour:
		return 20
	default:
		return 5
	}
}

// scorePasswordAge: an unchanged-for-a-long-time password scores higher,
// the inverse curve of account age.
func scorePasswordAge(in Input) int {
	if in.PasswordChangedAt.IsZero() {
		return 70
	}
	age := in.Now.Sub(in.PasswordChangedAt)
	switch {
	case age < 24*time.Hour:
		return 5
	case age < 7*24*time.Hour:
		return 10
	case age < 30*24*time.Hour:
		return 20
	case age < 90*24*time.Hour:
		return 40
	default:
		return 70
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
