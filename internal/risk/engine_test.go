package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lavente-auth/authcore/internal/audit"
)

func TestLevelForClassifiesBands(t *testing.T) {
	require.Equal(t, LevelLow, LevelFor(0))
	require.Equal(t, LevelLow, LevelFor(39))
	require.Equal(t, LevelMedium, LevelFor(40))
	require.Equal(t, LevelMedium, LevelFor(59))
	require.Equal(t, LevelHigh, LevelFor(60))
	require.Equal(t, LevelHigh, LevelFor(79))
	require.Equal(t, LevelCritical, LevelFor(80))
	require.Equal(t, LevelCritical, LevelFor(100))
}

func TestEvaluateLowRiskKnownGoodRequest(t *testing.T) {
	engine := NewEngine(NewMemoryCounters(), nil, nil)
	now := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)

	score, err := engine.Evaluate(context.Background(), Input{
		UserID:            "user-1",
		IP:                "203.0.113.10",
		Country:           "NL",
		UserRecentCountries: []string{"NL"},
		DeviceFingerprint: "fp-known",
		KnownDevice:       true,
		HasAnyKnownDevice: true,
		AccountCreatedAt:  now.Add(-400 * 24 * time.Hour),
		PasswordChangedAt: now.Add(-10 * 24 * time.Hour),
		Now:               now,
	})

	require.NoError(t, err)
	require.Equal(t, LevelLow, score.Level)
	require.Less(t, score.Total, 40)
}

func TestEvaluateHighRiskUnknownEverything(t *testing.T) {
	counters := NewMemoryCounters()
	require.NoError(t, counters.RecordFailedLogin(context.Background(), "user-2"))
	require.NoError(t, counters.RecordFailedLogin(context.Background(), "user-2"))
	require.NoError(t, counters.RecordFailedLogin(context.Background(), "user-2"))
	require.NoError(t, counters.RecordIPReputation(context.Background(), "198.51.100.1", 90))

	engine := NewEngine(counters, nil, nil, WithHighRiskCountries("KP"))
	now := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)

	score, err := engine.Evaluate(context.Background(), Input{
		UserID:            "user-2",
		IP:                "198.51.100.1",
		Country:           "KP",
		DeviceFingerprint: "fp-new",
		HasAnyKnownDevice: true,
		AccountCreatedAt:  now.Add(-2 * time.Hour),
		PasswordChangedAt: now.Add(-400 * 24 * time.Hour),
		Now:               now,
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, score.Total, 60)
}

func TestEvaluateKnownBadIPRangeScoresIPReputationVeryHigh(t *testing.T) {
	engine := NewEngine(NewMemoryCounters(), nil, nil, WithKnownBadRanges("203.0.113.0/24"))
	score, err := engine.Evaluate(context.Background(), Input{
		UserID: "user-3",
		IP:     "203.0.113.77",
		Now:    time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, 95, score.Factors[FactorIPReputation])
}

func TestEvaluatePrivateIPScoresIPReputationLow(t *testing.T) {
	engine := NewEngine(NewMemoryCounters(), nil, nil)
	score, err := engine.Evaluate(context.Background(), Input{IP: "10.0.0.5", Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, 5, score.Factors[FactorIPReputation])
}

func TestScoreTimeOfDayBands(t *testing.T) {
	require.Equal(t, 80, scoreTimeOfDay(time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)))
	require.Equal(t, 50, scoreTimeOfDay(time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)))
	require.Equal(t, 50, scoreTimeOfDay(time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)))
	require.Equal(t, 10, scoreTimeOfDay(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestScoreFailedAttemptsThresholds(t *testing.T) {
	counters := NewMemoryCounters()
	engine := NewEngine(counters, nil, nil)
	ctx := context.Background()

	require.Equal(t, 0, engine.scoreFailedAttempts(ctx, Input{UserID: "u"}))

	require.NoError(t, counters.RecordFailedLogin(ctx, "u"))
	require.Equal(t, 50, engine.scoreFailedAttempts(ctx, Input{UserID: "u"}))

	require.NoError(t, counters.RecordFailedLogin(ctx, "u"))
	require.NoError(t, counters.RecordFailedLogin(ctx, "u"))
	require.Equal(t, 80, engine.scoreFailedAttempts(ctx, Input{UserID: "u"}))

	require.NoError(t, counters.RecordFailedLogin(ctx, "u"))
	require.NoError(t, counters.RecordFailedLogin(ctx, "u"))
	require.Equal(t, 100, engine.scoreFailedAttempts(ctx, Input{UserID: "u"}))
}

func TestScoreSessionAnomalyAccumulates(t *testing.T) {
	now := time.Now()
	in := Input{
		HasActiveSession: true,
		IP:               "1.2.3.4",
		SessionIPAddress: "9.9.9.9",
		CurrentUserAgent: "chrome",
		SessionUserAgent: "firefox",
		SessionCreatedAt: now.Add(-40 * 24 * time.Hour),
		Now:              now,
	}
	require.Equal(t, 90, scoreSessionAnomaly(in))
}

func TestScoreSessionAnomalyZeroWithNoActiveSession(t *testing.T) {
	require.Equal(t, 0, scoreSessionAnomaly(Input{HasActiveSession: false}))
}

func TestScoreDeviceFingerprintCases(t *testing.T) {
	require.Equal(t, 10, scoreDeviceFingerprint(Input{DeviceFingerprint: "fp", KnownDevice: true}))
	require.Equal(t, 50, scoreDeviceFingerprint(Input{DeviceFingerprint: "fp", HasAnyKnownDevice: false}))
	require.Equal(t, 75, scoreDeviceFingerprint(Input{DeviceFingerprint: "fp", HasAnyKnownDevice: true}))
	require.Equal(t, 60, scoreDeviceFingerprint(Input{}))
}

func TestScoreAccountAgeBands(t *testing.T) {
	now := time.Now()
	require.Equal(t, 80, scoreAccountAge(Input{AccountCreatedAt: now.Add(-1 * time.Hour), Now: now}))
	require.Equal(t, 60, scoreAccountAge(Input{AccountCreatedAt: now.Add(-3 * 24 * time.Hour), Now: now}))
	require.Equal(t, 40, scoreAccountAge(Input{AccountCreatedAt: now.Add(-20 * 24 * time.Hour), Now: now}))
	require.Equal(t, 20, scoreAccountAge(Input{AccountCreatedAt: now.Add(-60 * 24 * time.Hour), Now: now}))
	require.Equal(t, 5, scoreAccountAge(Input{AccountCreatedAt: now.Add(-400 * 24 * time.Hour), Now: now}))
}

func TestScorePasswordAgeBandsAreInverseOfAccountAge(t *testing.T) {
	now := time.Now()
	require.Equal(t, 5, scorePasswordAge(Input{PasswordChangedAt: now.Add(-1 * time.Hour), Now: now}))
	require.Equal(t, 70, scorePasswordAge(Input{PasswordChangedAt: now.Add(-400 * 24 * time.Hour), Now: now}))
}

func TestMemoryCountersRecentFailedLoginsExpireAfterWindow(t *testing.T) {
	c := NewMemoryCounters()
	ctx := context.Background()
	require.NoError(t, c.RecordFailedLogin(ctx, "u1"))
	n, err := c.RecentFailedLogins(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// simulate expiry by writing an already-past entry directly
	c.mu.Lock()
	c.failed["u1"] = counterEntry{value: 7, expiresAt: time.Now().Add(-time.Minute)}
	c.mu.Unlock()

	n, err = c.RecentFailedLogins(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMemoryCountersIPReputationRoundTrip(t *testing.T) {
	c := NewMemoryCounters()
	ctx := context.Background()
	_, found, err := c.IPReputationScore(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.RecordIPReputation(ctx, "1.2.3.4", 77))
	score, found, err := c.IPReputationScore(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 77, score)
}

func TestEvaluateEmitsSuspiciousActivityAboveThreshold(t *testing.T) {
	backend := newCapturingLog()
	logger := newCaptureLogger(backend)
	counters := NewMemoryCounters()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, counters.RecordFailedLogin(ctx, "user-risky"))
	}
	engine := NewEngine(counters, logger, nil, WithKnownBadRanges("198.51.100.0/24"), WithHighRiskCountries("KP"))

	now := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)
	score, err := engine.Evaluate(ctx, Input{
		UserID:                        "user-risky",
		IP:                            "198.51.100.5",
		Country:                       "KP",
		RecentWarningOrCriticalEvents: 4,
		DeviceFingerprint:             "",
		HasAnyKnownDevice:             true,
		HasActiveSession:              true,
		SessionIPAddress:              "9.9.9.9",
		CurrentUserAgent:              "chrome",
		SessionUserAgent:              "firefox",
		SessionCreatedAt:              now.Add(-40 * 24 * time.Hour),
		AccountCreatedAt:              now.Add(-time.Hour),
		PasswordChangedAt:             now.Add(-400 * 24 * time.Hour),
		Now:                           now,
	})
	require.NoError(t, err)
	require.Greater(t, score.Total, 70)
	require.NotEmpty(t, backend.events)
	require.Equal(t, audit.EventSuspiciousActivity, backend.events[0].EventType)
}
