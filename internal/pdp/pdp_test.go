package pdp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lavente-auth/authcore/internal/permission"
	"github.com/lavente-auth/authcore/internal/risk"
)

func newTestPDP(t *testing.T, rules ...permission.Rule) *PDP {
	t.Helper()
	store := permission.NewMemoryStore()
	for _, r := range rules {
		require.NoError(t, store.Create(context.Background(), r))
	}
	permEngine := permission.NewEngine(store, nil, permission.WithSeedOnEmpty(false))
	require.NoError(t, permEngine.Load(context.Background()))
	riskEngine := risk.NewEngine(risk.NewMemoryCounters(), nil, nil)
	return New(permEngine, riskEngine, nil)
}

func lowRiskInput() risk.Input {
	now := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	return risk.Input{
		UserID: "u1", IP: "203.0.113.1", Country: "NL",
		UserRecentCountries: []string{"NL"},
		DeviceFingerprint:   "fp", KnownDevice: true, HasAnyKnownDevice: true,
		AccountCreatedAt: now.Add(-400 * 24 * time.Hour), PasswordChangedAt: now.Add(-10 * 24 * time.Hour),
		Now: now,
	}
}

func TestEvaluateDeniesWhenPermissionEngineDenies(t *testing.T) {
	p := newTestPDP(t) // no rules at all -> default deny
	decision := p.Evaluate(context.Background(), Request{
		Resource: "doc:1", Action: "read",
		PermissionContext: permission.EvalContext{UserAttributes: map[string]string{"role": "viewer"}},
		RiskInput:         lowRiskInput(),
	})
	require.False(t, decision.Allowed)
	require.Equal(t, "permission_denied", decision.Reason)
}

func TestEvaluateAllowsWithinRiskCap(t *testing.T) {
	p := newTestPDP(t, permission.Rule{ID: "allow-read", Resource: "*", Action: "read", Effect: permission.EffectAllow})
	decision := p.Evaluate(context.Background(), Request{
		Resource: "doc:1", Action: "read",
		PermissionContext: permission.EvalContext{UserAttributes: map[string]string{"role": "viewer"}},
		RiskInput:         lowRiskInput(),
	})
	require.True(t, decision.Allowed)
	require.Less(t, decision.RiskScore, defaultRiskCap)
}

func TestEvaluateDeniesWhenRiskExceedsActionSpecificCap(t *testing.T) {
	p := newTestPDP(t, permission.Rule{ID: "allow-delete", Resource: "*", Action: "delete", Effect: permission.EffectAllow})

	now := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)
	highRisk := risk.Input{
		UserID: "u1", IP: "203.0.113.1", Country: "",
		DeviceFingerprint: "", HasAnyKnownDevice: true,
		AccountCreatedAt: now.Add(-time.Hour), PasswordChangedAt: now.Add(-400 * 24 * time.Hour),
		Now: now,
	}

	decision := p.Evaluate(context.Background(), Request{
		Resource:          "user:42",
		Action:            "delete",
		PermissionContext: permission.EvalContext{UserAttributes: map[string]string{"role": "admin"}},
		RiskInput:         highRisk,
	})
	require.False(t, decision.Allowed)
	require.Equal(t, "risk_score_exceeds_cap", decision.Reason)
	require.Greater(t, decision.RiskScore, 20)
}

func TestEvaluateAttachesStepUpObligationForHighRiskOperationAboveThreshold(t *testing.T) {
	// admin:* is a high-risk operation class (cap 30). A score above 60
	// both exceeds the cap (denying the request) and crosses the step-up
	// threshold, so the obligation still rides along with the denial: the
	// enforcement layer can offer step-up and let the caller retry.
	store := permission.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), permission.Rule{ID: "allow-admin", Resource: "*", Action: "*", Effect: permission.EffectAllow}))
	permEngine := permission.NewEngine(store, nil)
	require.NoError(t, permEngine.Load(context.Background()))

	counters := risk.NewMemoryCounters()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, counters.RecordFailedLogin(ctx, "u1"))
	}
	riskEngine := risk.NewEngine(counters, nil, nil, risk.WithKnownBadRanges("198.51.100.0/24"), risk.WithHighRiskCountries("KP"))
	p := New(permEngine, riskEngine, nil)

	now := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)
	highRisk := risk.Input{
		UserID: "u1", IP: "198.51.100.1", Country: "KP",
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
	}

	decision := p.Evaluate(ctx, Request{
		Resource:          "admin:settings",
		Action:            "update",
		PermissionContext: permission.EvalContext{},
		RiskInput:         highRisk,
	})
	require.Greater(t, decision.RiskScore, 60)
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Obligations, ObligationStepUpAuthentication)
}

func TestEvaluateAttachesEnhancedAuditForSensitiveOperationClass(t *testing.T) {
	p := newTestPDP(t, permission.Rule{ID: "allow-license", Resource: "*", Action: "*", Effect: permission.EffectAllow})

	decision := p.Evaluate(context.Background(), Request{
		Resource:          "license:1",
		Action:            "delete",
		PermissionContext: permission.EvalContext{},
		RiskInput:         lowRiskInput(),
	})
	require.True(t, decision.Allowed)
	require.Contains(t, decision.Obligations, ObligationEnhancedAudit)
}

func TestEvaluateAttachesAdditionalVerificationAboveEighty(t *testing.T) {
	store := permission.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), permission.Rule{ID: "allow-read", Resource: "*", Action: "read", Effect: permission.EffectAllow}))
	permEngine := permission.NewEngine(store, nil)
	require.NoError(t, permEngine.Load(context.Background()))

	counters := risk.NewMemoryCounters()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, counters.RecordFailedLogin(ctx, "u1"))
	}
	riskEngine := risk.NewEngine(counters, nil, nil, risk.WithKnownBadRanges("198.51.100.0/24"), risk.WithHighRiskCountries("KP"))
	p := New(permEngine, riskEngine, nil)

	now := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)
	extremeRisk := risk.Input{
		UserID: "u1", IP: "198.51.100.1", Country: "KP",
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
	}

	decision := p.Evaluate(ctx, Request{
		Resource:          "doc:1",
		Action:            "read",
		PermissionContext: permission.EvalContext{},
		RiskInput:         extremeRisk,
	})
	require.Greater(t, decision.RiskScore, 80)
	require.Contains(t, decision.Obligations, ObligationAdditionalVerification)
}

func TestCapForMatchesByResourceTypeNotInstance(t *testing.T) {
	require.Equal(t, 20, capFor("user:999", "delete", defaultActionCaps))
	require.Equal(t, 30, capFor("admin:anything", "reset", defaultActionCaps))
	require.Equal(t, 70, capFor("license:1", "revoke", defaultActionCaps))
	require.Equal(t, defaultRiskCap, capFor("doc:1", "read", defaultActionCaps))
}
