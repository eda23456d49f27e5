package token

import "errors"

// Error kinds Verify returns. Verification never reveals which specific
// condition failed across the network — callers map these to a single
// generic wire response, but the kind itself is available for audit
// logging and internal branching (e.g. RequiresReauth on ErrUnknownKey).
var (
	ErrInvalidToken    = errors.New("token: invalid")
	ErrTokenExpired    = errors.New("token: expired")
	ErrUnknownKey      = errors.New("token: unknown signing key")
	ErrBindingMismatch = errors.New("token: client binding mismatch")
	ErrWrongType       = errors.New("token: unexpected token type")
	ErrNoActiveKey     = errors.New("token: no active signing key")
)
