package auth

import "errors"

// Error kinds Login/Logout return. These collapse anything
// user-identifying into a closed taxonomy before it reaches the caller;
// the audit log records the specific reason separately.
var (
	ErrValidation         = errors.New("auth: validation failed")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDeactivated = errors.New("auth: account deactivated")
	ErrStepUpRequired     = errors.New("auth: step-up authentication required")
	ErrInvalidCode        = errors.New("auth: invalid mfa code")
	ErrSessionNotFound    = errors.New("auth: session not found")
)
