package permission

import "context"

// Store persists PermissionRules.
type Store interface {
	All(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, r Rule) error
	Count(ctx context.Context) (int, error)
}
