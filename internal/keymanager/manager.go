package keymanager

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Failure kinds surfaced by the key manager. Higher layers (internal/token)
// map these onto their own closed error taxonomy.
var (
	ErrNoActiveKey = errors.New("keymanager: no active signing key")
	ErrUnknownKey  = errors.New("keymanager: unknown key id")
)

const (
	defaultGraceWindow = 24 * time.Hour
	defaultKeyExpiry   = 90 * 24 * time.Hour
	fallbackKeyExpiry  = 30 * 24 * time.Hour
	defaultKeyBits     = 2048
	defaultAlgorithm   = PS256
)

// Config controls Manager construction. Dir and GraceWindow map directly to
// the KEY_STORE_DIR / KEY_GRACE_HOURS environment variables.
type Config struct {
	Dir         string
	GraceWindow time.Duration
	KeyBits     int
	Logger      *slog.Logger
}

// Manager owns the in-memory index of key pairs and the on-disk store
// backing it. Reads (GetActiveKey, GetVerificationKey) vastly outnumber
// writes (Rotate, background load, cleanup); a single sync.RWMutex
// satisfies that read-biased access pattern without the complexity of a
// copy-on-write snapshot.
type Manager struct {
	mu          sync.RWMutex
	keys        map[string]*KeyPair
	active      string // key id of the current signing key, "" if none
	graceWindow time.Duration
	keyBits     int
	store       *diskStore
	log         *slog.Logger

	ready           chan struct{}
	readyOnce       sync.Once
	activeAvailable chan struct{}
	activeOnce      sync.Once
}

// New constructs a Manager and immediately returns it; disk loading happens
// asynchronously in a background goroutine so the service can come up
// without blocking on I/O. Callers must not assume a signing key is
// available until Ready()/ActiveKeyAvailable() unblock or GetActiveKey
// stops returning ErrNoActiveKey.
func New(cfg Config) (*Manager, error) {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}
	if cfg.KeyBits <= 0 {
		cfg.KeyBits = defaultKeyBits
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	store, err := newDiskStore(cfg.Dir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		keys:            make(map[string]*KeyPair),
		graceWindow:     cfg.GraceWindow,
		keyBits:         cfg.KeyBits,
		store:           store,
		log:             cfg.Logger,
		ready:           make(chan struct{}),
		activeAvailable: make(chan struct{}),
	}

	go m.loadAsync()

	return m, nil
}

// Ready is closed once the initial disk load (and any fallback generation
// it triggers) has completed.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// ActiveKeyAvailable is closed the first time an active signing key exists,
// whether from disk or freshly generated.
func (m *Manager) ActiveKeyAvailable() <-chan struct{} { return m.activeAvailable }

func (m *Manager) loadAsync() {
	defer m.readyOnce.Do(func() { close(m.ready) })

	loaded, errs := m.store.loadAll()
	for _, e := range errs {
		m.log.Error("keymanager_load_error", "error", e)
	}

	m.mu.Lock()
	now := time.Now()
	var newestActive, newestUsable *KeyPair
	for _, kp := range loaded {
		m.keys[kp.KeyID] = kp
		if kp.IsActive && (newestActive == nil || kp.CreatedAt.After(newestActive.CreatedAt)) {
			newestActive = kp
		}
		if kp.State(now) != StateExpired && kp.GracePeriodUntil == nil &&
			(newestUsable == nil || kp.CreatedAt.After(newestUsable.CreatedAt)) {
			newestUsable = kp
		}
	}

	switch {
	case newestActive != nil:
		m.active = newestActive.KeyID
	case newestUsable != nil:
		newestUsable.IsActive = true
		m.active = newestUsable.KeyID
		if err := m.persistLocked(newestUsable); err != nil {
			m.log.Error("keymanager_reactivate_persist_failed", "error", err)
		}
	default:
		kp, err := m.generateLocked(defaultAlgorithm, defaultKeyExpiry)
		if err != nil {
			m.log.Error("keymanager_initial_generate_failed", "error", err)
			kp, err = m.generateLocked(defaultAlgorithm, fallbackKeyExpiry)
			if err != nil {
				m.log.Error("keymanager_fallback_generate_failed", "error", err)
				m.mu.Unlock()
				return
			}
			m.log.Warn("keymanager_degraded_fallback_key", "key_id", kp.KeyID)
		}
		kp.IsActive = true
		m.active = kp.KeyID
		m.keys[kp.KeyID] = kp
		if err := m.persistLocked(kp); err != nil {
			m.log.Error("keymanager_initial_persist_failed", "error", err)
		}
	}
	hasActive := m.active != ""
	m.mu.Unlock()

	if hasActive {
		m.activeOnce.Do(func() { close(m.activeAvailable) })
	}
}

// generateLocked creates a fresh key pair. Caller holds m.mu.
func (m *Manager) generateLocked(alg Algorithm, expiry time.Duration) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, m.keyBits)
	if err != nil {
		return nil, fmt.Errorf("keymanager: generate rsa key: %w", err)
	}
	now := time.Now()
	exp := now.Add(expiry)
	return &KeyPair{
		KeyID:      uuid.NewString(),
		Algorithm:  alg,
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
		CreatedAt:  now,
		ExpiresAt:  &exp,
	}, nil
}

func (m *Manager) persistLocked(kp *KeyPair) error {
	all := make([]*KeyPair, 0, len(m.keys))
	for _, k := range m.keys {
		all = append(all, k)
	}
	return m.store.persist(kp, all)
}

// GetActiveKey returns the key pair currently used to sign new tokens.
func (m *Manager) GetActiveKey() (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return nil, ErrNoActiveKey
	}
	kp, ok := m.keys[m.active]
	if !ok || !kp.CanSign(time.Now()) {
		return nil, ErrNoActiveKey
	}
	return kp, nil
}

// GetVerificationKey returns the key pair identified by keyID, provided it
// is still eligible to verify (active, grace, or restart-tolerant).
func (m *Manager) GetVerificationKey(keyID string) (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kp, ok := m.keys[keyID]
	if !ok {
		return nil, ErrUnknownKey
	}
	if !kp.CanVerify(time.Now()) {
		return nil, ErrUnknownKey
	}
	return kp, nil
}

// MarkUsed records that keyID was just used to verify a token, for the
// advisory LastUsed field in index.json. Best-effort: failures are logged,
// never propagated, since verification must never fail because of a
// bookkeeping write.
func (m *Manager) MarkUsed(keyID string) {
	m.mu.Lock()
	kp, ok := m.keys[keyID]
	if ok {
		kp.LastUsed = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := func() error {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.store.writeIndex(m.allLocked())
	}(); err != nil {
		m.log.Warn("keymanager_mark_used_persist_failed", "key_id", keyID, "error", err)
	}
}

func (m *Manager) allLocked() []*KeyPair {
	all := make([]*KeyPair, 0, len(m.keys))
	for _, k := range m.keys {
		all = append(all, k)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all
}

// Rotate generates a new active key, demotes the previous active key into
// its grace window, and persists both. No in-flight verification can fail
// because of rotation as long as GraceWindow is at least as long as the
// longest-lived access token.
func (m *Manager) Rotate(ctx context.Context) (*KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newKey, err := m.generateLocked(defaultAlgorithm, defaultKeyExpiry)
	if err != nil {
		return nil, err
	}
	newKey.IsActive = true

	var prev *KeyPair
	if m.active != "" {
		prev = m.keys[m.active]
	}
	if prev != nil {
		prev.IsActive = false
		until := time.Now().Add(m.graceWindow)
		prev.GracePeriodUntil = &until
	}

	m.keys[newKey.KeyID] = newKey
	m.active = newKey.KeyID

	if prev != nil {
		if err := m.persistLocked(prev); err != nil {
			delete(m.keys, newKey.KeyID)
			m.active = prev.KeyID
			prev.IsActive = true
			prev.GracePeriodUntil = nil
			return nil, fmt.Errorf("keymanager: persist demoted key: %w", err)
		}
	}
	if err := m.persistLocked(newKey); err != nil {
		delete(m.keys, newKey.KeyID)
		if prev != nil {
			m.active = prev.KeyID
		} else {
			m.active = ""
		}
		return nil, fmt.Errorf("keymanager: persist new key: %w", err)
	}

	m.log.Info("keymanager_rotated", "new_key_id", newKey.KeyID)
	return newKey, nil
}

// Cleanup sweeps expired keys past their 7-day hard grace and drops grace
// state for keys whose grace window has elapsed. Intended to run roughly
// hourly; idempotent and safe to run
// concurrently with foreground verification since it only ever removes
// keys that can no longer verify anything.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	now := time.Now()
	var purge []string
	for id, kp := range m.keys {
		if kp.GracePeriodUntil != nil && now.After(*kp.GracePeriodUntil) {
			kp.GracePeriodUntil = nil
		}
		if !kp.IsActive && kp.HardGraceElapsed(now) {
			purge = append(purge, id)
		}
	}
	for _, id := range purge {
		delete(m.keys, id)
	}
	remaining := m.allLocked()
	m.mu.Unlock()

	if len(purge) == 0 {
		return nil
	}
	for _, id := range purge {
		if err := m.store.remove(id); err != nil {
			m.log.Error("keymanager_cleanup_remove_failed", "key_id", id, "error", err)
		}
	}
	if err := m.store.writeIndex(remaining); err != nil {
		return fmt.Errorf("keymanager: cleanup write index: %w", err)
	}
	m.log.Info("keymanager_cleanup_swept", "purged", len(purge))
	return nil
}

// JWK is one entry of a JSON Web Key Set.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the standard JSON Web Key Set shape.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// ExportJWKS returns the public half of every active or in-grace key so
// external verifiers can validate tokens without talking to this process.
// Restart-tolerant keys, which GetVerificationKey still accepts, and
// expired keys are not included.
func (m *Manager) ExportJWKS() JWKS {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := JWKS{}
	for _, kp := range m.keys {
		st := kp.State(now)
		if st != StateActive && st != StateGrace {
			continue
		}
		out.Keys = append(out.Keys, toJWK(kp))
	}
	sort.Slice(out.Keys, func(i, j int) bool { return out.Keys[i].Kid < out.Keys[j].Kid })
	return out
}

func toJWK(kp *KeyPair) JWK {
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(kp.PublicKey.E)).Bytes())
	n := base64.RawURLEncoding.EncodeToString(kp.PublicKey.N.Bytes())
	return JWK{
		Kty: "RSA",
		Kid: kp.KeyID,
		Use: "sig",
		Alg: string(kp.Algorithm),
		N:   n,
		E:   e,
	}
}
