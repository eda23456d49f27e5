// Package risk implements the Risk Engine: a nine-factor weighted
// score, classified into a risk level, with a fail-safe default of
// critical on internal failure.
package risk

import (
	"context"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lavente-auth/authcore/internal/audit"
)

// Level is the classification band a Score falls into.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// LevelFor classifies a 0-100 score.
func LevelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Score is the outcome of evaluating an Input.
type Score struct {
	Total   int
	Level   Level
	Factors map[FactorKey]int
}

// maxConcurrentFactors bounds the fan-out pool scoring the nine factors.
const maxConcurrentFactors = 4

// Engine computes risk scores. The factor scorers do not report errors: a
// failed Counters read is scored as if nothing were on record (no recent
// failed logins, no stored IP reputation), and Evaluate returns no error
// for it. A factor that produced no result at all scores 100.
type Engine struct {
	counters          Counters
	auditLog          *audit.Logger
	log               *slog.Logger
	highRiskCountries map[string]bool
	knownBadRanges    []*net.IPNet
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithHighRiskCountries sets the country codes treated as very-high-risk
// geolocations.
func WithHighRiskCountries(codes ...string) Option {
	return func(e *Engine) {
		for _, c := range codes {
			e.highRiskCountries[c] = true
		}
	}
}

// WithKnownBadRanges sets CIDR ranges (known VPN/Tor exit blocks, etc.)
// treated as very-high IP reputation risk.
func WithKnownBadRanges(cidrs ...string) Option {
	return func(e *Engine) {
		for _, cidr := range cidrs {
			if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
				e.knownBadRanges = append(e.knownBadRanges, ipNet)
			}
		}
	}
}

func NewEngine(counters Counters, auditLog *audit.Logger, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		counters:          counters,
		auditLog:          auditLog,
		log:               log,
		highRiskCountries: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores the nine factors concurrently over a bounded pool,
// combines them into a weighted total, classifies the level, and emits a
// suspicious_activity audit event when the score exceeds 70 (see
// recordIfSuspicious).
func (e *Engine) Evaluate(ctx context.Context, in Input) (Score, error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	factors := make(map[FactorKey]int, len(weights))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFactors)
	results := make(map[FactorKey]int)
	resultsCh := make(chan struct {
		key   FactorKey
		value int
	}, len(weights))

	submit := func(key FactorKey, fn func() int) {
		g.Go(func() error {
			resultsCh <- struct {
				key   FactorKey
				value int
			}{key, fn()}
			return nil
		})
	}

	submit(FactorIPReputation, func() int { return e.scoreIPReputation(gctx, in) })
	submit(FactorGeolocation, func() int { return e.scoreGeolocation(in) })
	submit(FactorTimeOfDay, func() int { return scoreTimeOfDay(in.Now) })
	submit(FactorUserHistory, func() int { return e.scoreUserHistory(gctx, in) })
	submit(FactorDeviceFingerprint, func() int { return scoreDeviceFingerprint(in) })
	submit(FactorSessionAnomaly, func() int { return scoreSessionAnomaly(in) })
	submit(FactorFailedAttempts, func() int { return e.scoreFailedAttempts(gctx, in) })
	submit(FactorAccountAge, func() int { return scoreAccountAge(in) })
	submit(FactorPasswordAge, func() int { return scorePasswordAge(in) })

	if err := g.Wait(); err != nil {
		return Score{Total: 100, Level: LevelCritical}, err
	}
	close(resultsCh)
	for r := range resultsCh {
		results[r.key] = r.value
	}
	for key := range weights {
		if v, ok := results[key]; ok {
			factors[key] = v
		} else {
			factors[key] = 100
		}
	}

	total := 0.0
	for key, weight := range weights {
		total += weight * float64(factors[key])
	}
	score := Score{Total: clampScore(int(total + 0.5)), Factors: factors}
	score.Level = LevelFor(score.Total)

	e.recordIfSuspicious(ctx, in, score)
	return score, nil
}

// recordIfSuspicious emits a suspicious_activity event when the score
// exceeds 70, at warning severity, or critical above 90.
func (e *Engine) recordIfSuspicious(ctx context.Context, in Input, score Score) {
	if e.auditLog == nil || score.Total <= 70 {
		return
	}
	severity := audit.SeverityWarning
	if score.Total > 90 {
		severity = audit.SeverityCritical
	}
	riskIndicators := make(map[string]any, len(score.Factors))
	for k, v := range score.Factors {
		riskIndicators[string(k)] = v
	}
	e.auditLog.Record(ctx, audit.Event{
		UserID:        in.UserID,
		EventType:     audit.EventSuspiciousActivity,
		EventSeverity: severity,
		IPAddress:     in.IP,
		Result:        audit.ResultDenied,
		Metadata: map[string]any{
			"reason":    "elevated_risk_score",
			"riskScore": score.Total,
			"riskLevel": string(score.Level),
		},
		RiskIndicators: riskIndicators,
	})
}
