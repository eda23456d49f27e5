package permission

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Engine caches rules in memory, sorted by descending priority, and
// evaluates them against requests. Evaluation is pure: it
// never mutates shared state.
type Engine struct {
	store       Store
	log         *slog.Logger
	seedOnEmpty bool

	mu    sync.RWMutex
	rules []Rule
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithSeedOnEmpty controls whether Load seeds the default rule set into
// an empty store (PERMISSION_SEED_ON_EMPTY). Defaults to true; set false
// for deployments that manage their rule set entirely out-of-band and
// want an empty store to mean "deny everything" rather than "seed
// defaults".
func WithSeedOnEmpty(seed bool) Option {
	return func(e *Engine) { e.seedOnEmpty = seed }
}

func NewEngine(store Store, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{store: store, log: log, seedOnEmpty: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load reads all rules from the store, seeding the default set if the
// store is empty and seeding is enabled, and caches them sorted by
// descending priority.
func (e *Engine) Load(ctx context.Context) error {
	count, err := e.store.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 && e.seedOnEmpty {
		for _, r := range defaultRules() {
			if err := e.store.Create(ctx, r); err != nil {
				return err
			}
		}
		e.log.Info("permission_rules_seeded", "count", len(defaultRules()))
	}

	rules, err := e.store.All(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

// Decision is the outcome of evaluating a request against the cached
// rule set.
type Decision struct {
	Allowed bool
	RuleID  string
}

// Evaluate finds the first matching rule (by resource/action, in
// descending-priority order) and applies its effect if all attached
// conditions pass. A matching rule whose conditions fail denies — it is
// the decisive rule, not skipped in favor of the next. No rule matching
// at all defaults to deny.
func (e *Engine) Evaluate(resource, action string, ctx EvalContext) Decision {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		if !r.Matches(resource, action) {
			continue
		}
		if !r.Evaluate(ctx) {
			return Decision{Allowed: false, RuleID: r.ID}
		}
		return Decision{Allowed: r.Effect == EffectAllow, RuleID: r.ID}
	}
	return Decision{Allowed: false}
}
