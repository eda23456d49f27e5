package token

import "time"

// BindingLevel controls how strictly a token is tied to the client that
// received it.
type BindingLevel string

const (
	BindingStrict   BindingLevel = "strict"
	BindingSoft     BindingLevel = "soft"
	BindingDisabled BindingLevel = "disabled"
)

// Type discriminates the three payload variants. Every verification call
// states the Type it expects and rejects anything else.
type Type string

const (
	TypeAccess     Type = "access"
	TypeRefresh    Type = "refresh"
	TypePrivileged Type = "privileged"
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID       string       `json:"userId"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	SessionID    string       `json:"sid"`
	JTI          string       `json:"jti"`
	IPHash       string       `json:"ipHash,omitempty"`
	UAHash       string       `json:"uaHash,omitempty"`
	BindingLevel BindingLevel `json:"bindingLevel"`
	Type         Type         `json:"type"`
	IssuedAt     time.Time    `json:"iat"`
	ExpiresAt    time.Time    `json:"exp"`
}

// RefreshClaims is the payload of a refresh token.
type RefreshClaims struct {
	UserID      string    `json:"userId"`
	SessionID   string    `json:"sid"`
	JTI         string    `json:"jti"`
	TokenFamily string    `json:"tokenFamily"`
	Type        Type      `json:"type"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// PrivilegedClaims is the payload of a privileged (step-up) token. It
// always carries BindingStrict.
type PrivilegedClaims struct {
	UserID       string        `json:"userId"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	SessionID    string        `json:"sid"`
	JTI          string        `json:"jti"`
	IPHash       string        `json:"ipHash,omitempty"`
	UAHash       string        `json:"uaHash,omitempty"`
	BindingLevel BindingLevel  `json:"bindingLevel"`
	Scopes       []string      `json:"scopes"`
	TTL          time.Duration `json:"ttl"`
	Type         Type          `json:"type"`
	IssuedAt     time.Time     `json:"iat"`
	ExpiresAt    time.Time     `json:"exp"`
}

// ClientContext carries the caller's current IP/user-agent for binding
// validation at verification time.
type ClientContext struct {
	IP        string
	UserAgent string
}
