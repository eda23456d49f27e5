package user

import (
	"context"
	"time"
)

// Repository is the read/write contract the rest of the system depends
// on for account data. It deliberately excludes registration/recovery
// flows — out of scope for this module.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error
	AddKnownDevice(ctx context.Context, id, fingerprint string) error

	// ConsumeBackupCode marks the backup code matching codeHash as spent.
	// It is a no-op if the hash isn't found or was already consumed.
	ConsumeBackupCode(ctx context.Context, id, codeHash string) error
	Save(ctx context.Context, u *User) error
}
