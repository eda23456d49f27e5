package permission

// defaultRules seeds the three-tier role hierarchy (admin > editor >
// viewer) as ABAC user_attribute conditions on a "role" attribute, so the
// tiers are exercised through the tagged-condition evaluator instead of a
// reparsed string check.
func defaultRules() []Rule {
	return []Rule{
		{
			ID: "seed-admin-wildcard", Resource: "*", Action: "*", Priority: 100, Effect: EffectAllow,
			Conditions: []Condition{roleCondition("admin")},
		},
		{
			ID: "seed-editor-write", Resource: "*", Action: "write", Priority: 80, Effect: EffectAllow,
			Conditions: []Condition{roleCondition("editor")},
		},
		{
			ID: "seed-editor-read", Resource: "*", Action: "read", Priority: 80, Effect: EffectAllow,
			Conditions: []Condition{roleCondition("editor")},
		},
		{
			ID: "seed-viewer-read", Resource: "*", Action: "read", Priority: 60, Effect: EffectAllow,
			Conditions: []Condition{roleCondition("viewer")},
		},
		{
			ID: "seed-deny-deletes-medium-risk", Resource: "*", Action: "delete", Priority: 90, Effect: EffectDeny,
			Conditions: []Condition{{Type: ConditionRiskScore, Operator: OpLte, ValueNumber: 40}},
		},
	}
}

func roleCondition(role string) Condition {
	return Condition{Type: ConditionUserAttribute, Key: "role", Operator: OpEq, ValueText: role}
}
