package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

// AccountDirectory is the narrow contract against the externally owned account
// store. This core reads identities and mutates only lock state and
// two-factor credential state; everything else about an account belongs to
// the profile service.
type AccountDirectory interface {
	FindByIdentifier(ctx context.Context, identifier string) (domain.Account, error)
	FindByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error)

	// Lock flags the account; it never runs on a timer and is cleared only by
	// an explicit Unlock.
	Lock(ctx context.Context, accountID uuid.UUID, reason string, lockedAt time.Time) error
	Unlock(ctx context.Context, accountID uuid.UUID) error

	GetTwoFactorCredential(ctx context.Context, accountID uuid.UUID) (domain.TwoFactorCredential, error)
	SetTwoFactorCredential(ctx context.Context, accountID uuid.UUID, secret string, enabled bool, updatedAt time.Time) error

	// ReplaceBackupCodes installs a fresh set of code digests, invalidating any
	// prior set. ConsumeBackupCode must check-and-invalidate in one step so a
	// code can never be spent twice by concurrent requests.
	ReplaceBackupCodes(ctx context.Context, accountID uuid.UUID, codeDigests []string, createdAt time.Time) error
	ConsumeBackupCode(ctx context.Context, accountID uuid.UUID, codeDigest string, usedAt time.Time) (bool, error)
}
