// Package pdp implements the Policy Decision Point: a pure
// combinator over the Permission Engine and the Risk Engine.
package pdp

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lavente-auth/authcore/internal/permission"
	"github.com/lavente-auth/authcore/internal/risk"
)

// actionCap is one entry of the action-specific risk cap table. Pattern is
// matched against "resource:action" with path.Match, the same glob
// semantics the permission engine uses for resource matching.
type actionCap struct {
	pattern string
	cap     int
}

const defaultRiskCap = 80

// defaultActionCaps is the literal cap table. Caps at or below
// sensitiveOperationCeiling mark an operation as a "sensitive operation
// class" for the enhanced_audit obligation; caps at or below
// highRiskOperationCeiling mark it "high-risk" for step_up_authentication.
var defaultActionCaps = []actionCap{
	{"user:delete", 20},
	{"admin:*", 30},
	{"license:*", 70},
}

const (
	highRiskOperationCeiling  = 30
	sensitiveOperationCeiling = 70
)

// PDP combines the permission and risk engines into a single decision.
type PDP struct {
	permissions *permission.Engine
	risk        *risk.Engine
	log         *slog.Logger
	actionCaps  []actionCap
}

func New(permissions *permission.Engine, riskEngine *risk.Engine, log *slog.Logger) *PDP {
	if log == nil {
		log = slog.Default()
	}
	return &PDP{permissions: permissions, risk: riskEngine, log: log, actionCaps: defaultActionCaps}
}

// Request bundles everything the two engines need to evaluate one access
// attempt.
type Request struct {
	Resource          string
	Action            string
	PermissionContext permission.EvalContext
	RiskInput         risk.Input
}

// capFor looks up the risk cap for a resource/action pair. The cap table
// is keyed by resource *type* (the segment of Resource
// before its first ":", e.g. "user:42" -> type "user"), not by resource
// instance, so the same cap applies to every instance of a type.
func capFor(resource, action string, caps []actionCap) int {
	resourceType := resource
	if idx := strings.IndexByte(resource, ':'); idx >= 0 {
		resourceType = resource[:idx]
	}
	key := resourceType + ":" + action
	for _, c := range caps {
		if ok, err := path.Match(c.pattern, key); err == nil && ok {
			return c.cap
		}
	}
	return defaultRiskCap
}

// Evaluate runs the permission and risk engines concurrently, then
// combines:
//  1. permission denial wins outright.
//  2. otherwise the action's risk cap is enforced; exceeding it denies.
//  3. otherwise allow, with obligations attached per the score and
//     operation class.
//
// On any internal error from either engine, Evaluate fails safe: deny
// with a critical risk classification.
func (p *PDP) Evaluate(ctx context.Context, req Request) Decision {
	var permDecision permission.Decision
	var riskScore risk.Score

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		permDecision = p.permissions.Evaluate(req.Resource, req.Action, req.PermissionContext)
		return nil
	})
	g.Go(func() error {
		score, err := p.risk.Evaluate(gctx, req.RiskInput)
		if err != nil {
			return err
		}
		riskScore = score
		return nil
	})
	if err := g.Wait(); err != nil {
		p.log.Error("pdp_evaluate_failed", "error", err)
		return denyCritical("internal_error")
	}

	if !permDecision.Allowed {
		return Decision{
			Allowed: false, Reason: "permission_denied", RuleID: permDecision.RuleID,
			RiskScore: riskScore.Total, RiskLevel: riskScore.Level,
		}
	}

	cap := capFor(req.Resource, req.Action, p.actionCaps)
	decision := Decision{
		RuleID: permDecision.RuleID, RiskScore: riskScore.Total, RiskLevel: riskScore.Level,
	}
	if riskScore.Total > cap {
		decision.Allowed = false
		decision.Reason = "risk_score_exceeds_cap"
	} else {
		decision.Allowed = true
	}

	if cap <= highRiskOperationCeiling && riskScore.Total > 60 {
		decision.Obligations = append(decision.Obligations, ObligationStepUpAuthentication)
	}
	if riskScore.Total > 80 {
		decision.Obligations = append(decision.Obligations, ObligationAdditionalVerification)
	}
	if cap <= sensitiveOperationCeiling {
		decision.Obligations = append(decision.Obligations, ObligationEnhancedAudit)
	}
	if decision.Allowed && riskScore.Level == risk.LevelMedium {
		decision.Advice = append(decision.Advice, "risk_level_medium_consider_monitoring")
	}

	return decision
}
