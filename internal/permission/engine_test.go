package permission

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewEngine(store, nil), store
}

func TestLoadSeedsDefaultRulesWhenStoreEmpty(t *testing.T) {
	engine, store := newTestEngine(t)

	err := engine.Load(context.Background())
	require.NoError(t, err)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestLoadDoesNotReseedExistingRules(t *testing.T) {
	engine, store := newTestEngine(t)
	require.NoError(t, store.Create(context.Background(), Rule{ID: "custom", Resource: "doc:*", Action: "read", Effect: EffectAllow}))

	require.NoError(t, engine.Load(context.Background()))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLoadCachesRulesInDescendingPriorityOrder(t *testing.T) {
	engine, store := newTestEngine(t)
	require.NoError(t, store.Create(context.Background(), Rule{ID: "low", Resource: "*", Action: "read", Priority: 1, Effect: EffectAllow}))
	require.NoError(t, store.Create(context.Background(), Rule{ID: "high", Resource: "*", Action: "read", Priority: 99, Effect: EffectAllow}))
	require.NoError(t, store.Create(context.Background(), Rule{ID: "mid", Resource: "*", Action: "read", Priority: 50, Effect: EffectAllow}))

	require.NoError(t, engine.Load(context.Background()))

	require.Equal(t, []string{"high", "mid", "low"}, []string{engine.rules[0].ID, engine.rules[1].ID, engine.rules[2].ID})
}

func TestEvaluateDefaultsToDenyWhenNoRuleMatches(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Load(context.Background()))

	decision := engine.Evaluate("doc:42", "archive", EvalContext{UserAttributes: map[string]string{"role": "viewer"}})
	require.False(t, decision.Allowed)
	require.Empty(t, decision.RuleID)
}

func TestEvaluateAdminWildcardAllowsAnyResourceAndAction(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Load(context.Background()))

	decision := engine.Evaluate("doc:42", "delete", EvalContext{
		RiskScore:      0,
		UserAttributes: map[string]string{"role": "admin"},
	})
	require.True(t, decision.Allowed)
	require.Equal(t, "seed-admin-wildcard", decision.RuleID)
}

func TestEvaluateEditorCanWriteAndRead(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Load(context.Background()))

	ctx := EvalContext{UserAttributes: map[string]string{"role": "editor"}}
	writeDecision := engine.Evaluate("doc:1", "write", ctx)
	require.True(t, writeDecision.Allowed)
	require.Equal(t, "seed-editor-write", writeDecision.RuleID)

	readDecision := engine.Evaluate("doc:1", "read", ctx)
	require.True(t, readDecision.Allowed)
	require.Equal(t, "seed-editor-read", readDecision.RuleID)
}

func TestEvaluateViewerCannotWrite(t *testing.T) {
	engine, _ := newTestEngine(t)
	require.NoError(t, engine.Load(context.Background()))

	decision := engine.Evaluate("doc:1", "write", EvalContext{UserAttributes: map[string]string{"role": "viewer"}})
	require.False(t, decision.Allowed)
}

func TestEvaluateDeniesDeleteAboveRiskThresholdEvenForEditor(t *testing.T) {
	engine, store := newTestEngine(t)
	// Editor-delete allow rule, outranked in priority by the seeded
	// medium-risk delete deny.
	require.NoError(t, store.Create(context.Background(), Rule{
		ID: "editor-delete", Resource: "*", Action: "delete", Priority: 70, Effect: EffectAllow,
		Conditions: []Condition{roleCondition("editor")},
	}))
	require.NoError(t, engine.Load(context.Background()))

	lowRisk := engine.Evaluate("doc:1", "delete", EvalContext{RiskScore: 10, UserAttributes: map[string]string{"role": "editor"}})
	require.True(t, lowRisk.Allowed)
	require.Equal(t, "editor-delete", lowRisk.RuleID)

	highRisk := engine.Evaluate("doc:1", "delete", EvalContext{RiskScore: 75, UserAttributes: map[string]string{"role": "editor"}})
	require.False(t, highRisk.Allowed)
	require.Equal(t, "seed-deny-deletes-medium-risk", highRisk.RuleID)
}

func TestRuleMatchesResourceGlob(t *testing.T) {
	r := Rule{Resource: "doc:*", Action: "read"}
	require.True(t, r.Matches("doc:42", "read"))
	require.False(t, r.Matches("invoice:42", "read"))
}

func TestRuleMatchesWildcardAction(t *testing.T) {
	r := Rule{Resource: "*", Action: "*"}
	require.True(t, r.Matches("anything", "anything"))
}

func TestRuleFailingConditionIsTheDecisiveRuleNotSkipped(t *testing.T) {
	// A matching-but-failing rule must deny outright rather than letting
	// evaluation fall through to a lower-priority rule that would allow.
	high := Rule{ID: "high-deny", Resource: "*", Action: "read", Priority: 90, Effect: EffectAllow,
		Conditions: []Condition{roleCondition("admin")}}
	low := Rule{ID: "low-allow", Resource: "*", Action: "read", Priority: 10, Effect: EffectAllow}

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), high))
	require.NoError(t, store.Create(context.Background(), low))
	engine := NewEngine(store, nil)
	require.NoError(t, engine.Load(context.Background()))

	decision := engine.Evaluate("x", "read", EvalContext{UserAttributes: map[string]string{"role": "viewer"}})
	require.False(t, decision.Allowed)
	require.Equal(t, "high-deny", decision.RuleID)
}

func TestConditionEvaluatesUserAttribute(t *testing.T) {
	c := Condition{Type: ConditionUserAttribute, Key: "role", Operator: OpEq, ValueText: "admin"}
	require.True(t, c.Evaluate(EvalContext{UserAttributes: map[string]string{"role": "admin"}}))
	require.False(t, c.Evaluate(EvalContext{UserAttributes: map[string]string{"role": "viewer"}}))
}

func TestConditionEvaluatesRiskScoreCeiling(t *testing.T) {
	c := Condition{Type: ConditionRiskScore, Operator: OpLte, ValueNumber: 40}
	require.True(t, c.Evaluate(EvalContext{RiskScore: 40}))
	require.False(t, c.Evaluate(EvalContext{RiskScore: 41}))
}

func TestConditionEvaluatesRiskScoreOperators(t *testing.T) {
	gt := Condition{Type: ConditionRiskScore, Operator: OpGt, ValueNumber: 50}
	require.True(t, gt.Evaluate(EvalContext{RiskScore: 51}))
	require.False(t, gt.Evaluate(EvalContext{RiskScore: 50}))

	raw, err := json.Marshal([2]float64{20, 40})
	require.NoError(t, err)
	between := Condition{Type: ConditionRiskScore, Operator: OpBetween, ValueJSON: raw}
	require.True(t, between.Evaluate(EvalContext{RiskScore: 30}))
	require.False(t, between.Evaluate(EvalContext{RiskScore: 50}))
}

func TestConditionEvaluatesSecurityLevelFloor(t *testing.T) {
	c := Condition{Type: ConditionSecurityLevel, Operator: OpGte, ValueNumber: 2}
	require.True(t, c.Evaluate(EvalContext{SecurityLevel: 3}))
	require.False(t, c.Evaluate(EvalContext{SecurityLevel: 1}))
}

func TestConditionEvaluatesDeviceFingerprintExactMatch(t *testing.T) {
	c := Condition{Type: ConditionDeviceFingerprint, Operator: OpEq, ValueText: "fp-abc"}
	require.True(t, c.Evaluate(EvalContext{DeviceFingerprint: "fp-abc"}))
	require.False(t, c.Evaluate(EvalContext{DeviceFingerprint: "fp-xyz"}))
	require.False(t, c.Evaluate(EvalContext{}))
}

func TestConditionEvaluatesGeolocationAllowList(t *testing.T) {
	raw, err := json.Marshal([]string{"NL", "DE", "BE"})
	require.NoError(t, err)
	c := Condition{Type: ConditionGeolocation, Operator: OpIn, ValueJSON: raw}

	require.True(t, c.Evaluate(EvalContext{Country: "NL"}))
	require.False(t, c.Evaluate(EvalContext{Country: "RU"}))
}

func TestConditionEvaluatesUserAttributeNotEqual(t *testing.T) {
	c := Condition{Type: ConditionUserAttribute, Key: "status", Operator: OpNeq, ValueText: "banned"}
	require.True(t, c.Evaluate(EvalContext{UserAttributes: map[string]string{"status": "active"}}))
	require.False(t, c.Evaluate(EvalContext{UserAttributes: map[string]string{"status": "banned"}}))
}

func TestConditionEvaluatesUserAttributeIn(t *testing.T) {
	raw, err := json.Marshal([]string{"admin", "editor"})
	require.NoError(t, err)
	c := Condition{Type: ConditionUserAttribute, Key: "role", Operator: OpIn, ValueJSON: raw}
	require.True(t, c.Evaluate(EvalContext{UserAttributes: map[string]string{"role": "editor"}}))
	require.False(t, c.Evaluate(EvalContext{UserAttributes: map[string]string{"role": "viewer"}}))
}

func TestConditionEvaluatesTimeWindow(t *testing.T) {
	raw, err := json.Marshal([2]string{"09:00", "17:00"})
	require.NoError(t, err)
	c := Condition{Type: ConditionTimeWindow, ValueJSON: raw}

	inside := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)

	require.True(t, c.Evaluate(EvalContext{Now: inside}))
	require.False(t, c.Evaluate(EvalContext{Now: outside}))
}

func TestConditionEvaluatesIPRangeWhitelistAndBlacklist(t *testing.T) {
	raw, err := json.Marshal(ipRangeValue{
		Whitelist: []string{"10.0.0.0/8"},
		Blacklist: []string{"10.0.0.99/32"},
	})
	require.NoError(t, err)
	c := Condition{Type: ConditionIPRange, ValueJSON: raw}

	require.True(t, c.Evaluate(EvalContext{IP: "10.0.0.5"}))
	require.False(t, c.Evaluate(EvalContext{IP: "10.0.0.99"}))
	require.False(t, c.Evaluate(EvalContext{IP: "192.168.1.1"}))
}

func TestConditionIPRangeWithNoWhitelistAllowsAnyNonBlacklisted(t *testing.T) {
	raw, err := json.Marshal(ipRangeValue{Blacklist: []string{"203.0.113.0/24"}})
	require.NoError(t, err)
	c := Condition{Type: ConditionIPRange, ValueJSON: raw}

	require.True(t, c.Evaluate(EvalContext{IP: "8.8.8.8"}))
	require.False(t, c.Evaluate(EvalContext{IP: "203.0.113.5"}))
}
