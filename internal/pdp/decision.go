package pdp

import "github.com/lavente-auth/authcore/internal/risk"

// Obligation is something the enforcement layer must honor alongside a
// decision. Obligations accompany allow decisions and risk-cap denials
// alike.
type Obligation string

const (
	ObligationStepUpAuthentication   Obligation = "step_up_authentication"
	ObligationAdditionalVerification Obligation = "additional_verification"
	ObligationEnhancedAudit          Obligation = "enhanced_audit"
)

// Decision is the PDP's combined output. It is the only thing the
// enforcement layer acts on; callers never see the permission/risk
// engines directly.
type Decision struct {
	Allowed     bool
	Reason      string
	RuleID      string
	RiskScore   int
	RiskLevel   risk.Level
	Obligations []Obligation
	Advice      []string
}

func denyCritical(reason string) Decision {
	return Decision{Allowed: false, Reason: reason, RiskScore: 100, RiskLevel: risk.LevelCritical}
}
