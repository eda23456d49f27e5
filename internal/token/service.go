package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lavente-auth/authcore/internal/keymanager"
)

const (
	DefaultAccessTTL     = 15 * time.Minute
	DefaultRefreshTTL    = 7 * 24 * time.Hour
	DefaultPrivilegedTTL = 5 * time.Minute
	DefaultClockSkew     = 60 * time.Second

	bindingHashLen = 16 // truncated to exactly 16 hex chars
)

// KeySource is the subset of *keymanager.Manager the token service needs.
// Kept as an interface so tests can substitute a fake without spinning up
// on-disk key state.
type KeySource interface {
	GetActiveKey() (*keymanager.KeyPair, error)
	GetVerificationKey(keyID string) (*keymanager.KeyPair, error)
	MarkUsed(keyID string)
}

// Config controls Service construction. Issuer/Audience/ClockSkew map to
// the JWT_ISSUER / JWT_AUDIENCE / JWT_CLOCK_SKEW_SECONDS env vars
//; LegacySecret maps to JWT_SECRET, the HS256 transition path.
type Config struct {
	Issuer       string
	Audience     string
	ClockSkew    time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	PrivilegedTTL time.Duration
	LegacySecret string // non-empty enables legacy HS256 verification only
}

// Service signs and verifies the three token variants, routing
// verification to the correct public key via the kid header.
type Service struct {
	keys   KeySource
	issuer string
	aud    string
	skew   time.Duration

	accessTTL     time.Duration
	refreshTTL    time.Duration
	privilegedTTL time.Duration
	legacySecret  []byte
}

func NewService(keys KeySource, cfg Config) *Service {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.PrivilegedTTL <= 0 {
		cfg.PrivilegedTTL = DefaultPrivilegedTTL
	}
	var secret []byte
	if cfg.LegacySecret != "" {
		secret = []byte(cfg.LegacySecret)
	}
	return &Service{
		keys:          keys,
		issuer:        cfg.Issuer,
		aud:           cfg.Audience,
		skew:          cfg.ClockSkew,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		privilegedTTL: cfg.PrivilegedTTL,
		legacySecret:  secret,
	}
}

// HashBinding truncates SHA-256(value) to the first 16 hex characters,
// used to fingerprint client IP/user-agent without storing raw values in
// the token.
func HashBinding(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:bindingHashLen]
}

type registeredClaims struct {
	jwt.RegisteredClaims
	Type Type `json:"type"`
}

// SignAccess issues an access token. When ctx is non-nil, IP/UA hashes are
// embedded per bindingLevel; the zero value of BindingLevel is treated as
// BindingSoft, the documented access-token default.
func (s *Service) SignAccess(userID, email, name, sessionID string, ctx *ClientContext, bindingLevel BindingLevel) (string, AccessClaims, error) {
	if bindingLevel == "" {
		bindingLevel = BindingSoft
	}
	key, err := s.keys.GetActiveKey()
	if err != nil {
		return "", AccessClaims{}, fmt.Errorf("%w: %v", ErrNoActiveKey, err)
	}

	now := time.Now()
	claims := AccessClaims{
		UserID:       userID,
		Email:        email,
		Name:         name,
		SessionID:    sessionID,
		JTI:          uuid.NewString(),
		BindingLevel: bindingLevel,
		Type:         TypeAccess,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.accessTTL),
	}
	if ctx != nil && bindingLevel != BindingDisabled {
		claims.IPHash = HashBinding(ctx.IP)
		claims.UAHash = HashBinding(ctx.UserAgent)
	}

	signed, err := s.sign(key, claims.JTI, claims.ExpiresAt, claims.IssuedAt, map[string]any{
		"userId":       claims.UserID,
		"email":        claims.Email,
		"name":         claims.Name,
		"sid":          claims.SessionID,
		"ipHash":       claims.IPHash,
		"uaHash":       claims.UAHash,
		"bindingLevel": string(claims.BindingLevel),
	}, TypeAccess)
	if err != nil {
		return "", AccessClaims{}, err
	}
	return signed, claims, nil
}

// SignRefresh issues a refresh token. If family is empty, a new token
// family is minted (a fresh login); rotation callers pass the existing
// family so reuse detection spans the whole chain.
func (s *Service) SignRefresh(userID, sessionID, family string) (string, RefreshClaims, error) {
	key, err := s.keys.GetActiveKey()
	if err != nil {
		return "", RefreshClaims{}, fmt.Errorf("%w: %v", ErrNoActiveKey, err)
	}
	if family == "" {
		family = uuid.NewString()
	}

	now := time.Now()
	claims := RefreshClaims{
		UserID:      userID,
		SessionID:   sessionID,
		JTI:         uuid.NewString(),
		TokenFamily: family,
		Type:        TypeRefresh,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.refreshTTL),
	}
	signed, err := s.sign(key, claims.JTI, claims.ExpiresAt, claims.IssuedAt, map[string]any{
		"userId":      claims.UserID,
		"sid":         claims.SessionID,
		"tokenFamily": claims.TokenFamily,
	}, TypeRefresh)
	if err != nil {
		return "", RefreshClaims{}, err
	}
	return signed, claims, nil
}

// SignPrivileged issues a short-lived, strictly-bound privileged token
// carrying scopes, used to discharge the PDP's step-up obligations.
func (s *Service) SignPrivileged(userID, email, name, sessionID string, ctx *ClientContext, scopes []string) (string, PrivilegedClaims, error) {
	key, err := s.keys.GetActiveKey()
	if err != nil {
		return "", PrivilegedClaims{}, fmt.Errorf("%w: %v", ErrNoActiveKey, err)
	}

	now := time.Now()
	claims := PrivilegedClaims{
		UserID:       userID,
		Email:        email,
		Name:         name,
		SessionID:    sessionID,
		JTI:          uuid.NewString(),
		BindingLevel: BindingStrict,
		Scopes:       scopes,
		TTL:          s.privilegedTTL,
		Type:         TypePrivileged,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.privilegedTTL),
	}
	if ctx != nil {
		claims.IPHash = HashBinding(ctx.IP)
		claims.UAHash = HashBinding(ctx.UserAgent)
	}

	signed, err := s.sign(key, claims.JTI, claims.ExpiresAt, claims.IssuedAt, map[string]any{
		"userId":       claims.UserID,
		"email":        claims.Email,
		"name":         claims.Name,
		"sid":          claims.SessionID,
		"ipHash":       claims.IPHash,
		"uaHash":       claims.UAHash,
		"bindingLevel": string(claims.BindingLevel),
		"scopes":       claims.Scopes,
	}, TypePrivileged)
	if err != nil {
		return "", PrivilegedClaims{}, err
	}
	return signed, claims, nil
}

func (s *Service) sign(key *keymanager.KeyPair, jti string, exp, iat time.Time, extra map[string]any, typ Type) (string, error) {
	claims := jwt.MapClaims{
		"iat":  jwt.NewNumericDate(iat),
		"exp":  jwt.NewNumericDate(exp),
		"iss":  s.issuer,
		"aud":  s.aud,
		"jti":  jti,
		"type": string(typ),
	}
	for k, v := range extra {
		claims[k] = v
	}

	method := signingMethodForAlgorithm(key.Algorithm)
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = key.KeyID
	return tok.SignedString(key.PrivateKey)
}

func signingMethodForAlgorithm(alg keymanager.Algorithm) jwt.SigningMethod {
	switch alg {
	case keymanager.PS384:
		return jwt.SigningMethodPS384
	case keymanager.PS512:
		return jwt.SigningMethodPS512
	case keymanager.RS256:
		return jwt.SigningMethodRS256
	case keymanager.RS384:
		return jwt.SigningMethodRS384
	case keymanager.RS512:
		return jwt.SigningMethodRS512
	default:
		return jwt.SigningMethodPS256
	}
}

// VerifyOptions controls a single Verify call.
type VerifyOptions struct {
	ExpectType Type
	Client     *ClientContext // nil disables binding validation entirely
}

// Result is the generic decoded payload returned by Verify, carrying
// whichever fields the token's type populated.
type Result struct {
	Type         Type
	UserID       string
	Email        string
	Name         string
	SessionID    string
	JTI          string
	TokenFamily  string
	IPHash       string
	UAHash       string
	BindingLevel BindingLevel
	Scopes       []string
	IssuedAt     time.Time
	ExpiresAt    time.Time

	// SoftBindingMismatch is set when a soft-bound token's client context
	// no longer matches; verification still succeeds but callers should
	// treat this as a risk signal.
	SoftBindingMismatch bool
}

// Verify decodes and validates a compact JWT, enforcing signature, issuer,
// audience, expiry (with clock skew), type discrimination, and client
// binding. It never reveals which specific check failed in the returned
// error beyond the closed taxonomy in errors.go.
func (s *Service) Verify(tokenString string, opts VerifyOptions) (Result, error) {
	var usedKeyID string
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			if _, isHMAC := t.Method.(*jwt.SigningMethodHMAC); isHMAC && s.legacySecret != nil {
				return s.legacySecret, nil
			}
			return nil, ErrInvalidToken
		}
		usedKeyID = kid
		key, err := s.keys.GetVerificationKey(kid)
		if err != nil {
			return nil, fmt.Errorf("%w", ErrUnknownKey)
		}
		switch t.Method.(type) {
		case *jwt.SigningMethodRSAPSS, *jwt.SigningMethodRSA:
			return key.PublicKey, nil
		default:
			return nil, ErrInvalidToken
		}
	}, jwt.WithLeeway(s.skew))
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return Result{}, ErrUnknownKey
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Result{}, ErrTokenExpired
		}
		return Result{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return Result{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Result{}, ErrInvalidToken
	}

	if iss, _ := claims["iss"].(string); s.issuer != "" && iss != s.issuer {
		return Result{}, ErrInvalidToken
	}
	if aud, _ := claims["aud"].(string); s.aud != "" && aud != s.aud {
		return Result{}, ErrInvalidToken
	}

	typ := Type(stringField(claims, "type"))
	if typ != opts.ExpectType {
		return Result{}, ErrWrongType
	}

	res := Result{
		Type:         typ,
		UserID:       stringField(claims, "userId"),
		Email:        stringField(claims, "email"),
		Name:         stringField(claims, "name"),
		SessionID:    stringField(claims, "sid"),
		JTI:          stringField(claims, "jti"),
		TokenFamily:  stringField(claims, "tokenFamily"),
		IPHash:       stringField(claims, "ipHash"),
		UAHash:       stringField(claims, "uaHash"),
		BindingLevel: BindingLevel(stringField(claims, "bindingLevel")),
		Scopes:       stringSliceField(claims, "scopes"),
		IssuedAt:     timeField(claims, "iat"),
		ExpiresAt:    timeField(claims, "exp"),
	}

	if opts.Client != nil && res.BindingLevel != BindingDisabled && res.BindingLevel != "" {
		curIP := HashBinding(opts.Client.IP)
		curUA := HashBinding(opts.Client.UserAgent)
		mismatch := !SecureCompareTokens(curIP, res.IPHash) || !SecureCompareTokens(curUA, res.UAHash)
		if mismatch {
			if res.BindingLevel == BindingStrict {
				return Result{}, ErrBindingMismatch
			}
			res.SoftBindingMismatch = true
		}
	}

	if usedKeyID != "" {
		s.keys.MarkUsed(usedKeyID)
	}

	return res, nil
}

// SecureCompareTokens compares two strings in constant time, independent
// of where the first mismatching byte falls. Used for binding-hash
// comparisons here and for backup-code matching in internal/auth.
func SecureCompareTokens(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func stringField(m jwt.MapClaims, key string) string {
	v, _ := m[key].(string)
	return v
}

func stringSliceField(m jwt.MapClaims, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeField(m jwt.MapClaims, key string) time.Time {
	switch v := m[key].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case jwt.NumericDate:
		return v.Time
	default:
		return time.Time{}
	}
}
