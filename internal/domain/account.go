package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the slice of the externally owned account record this core reads
// and mutates: identity, lock state and two-factor enablement. Profile,
// commissions and everything else stay with the owning service.
type Account struct {
	AccountID  uuid.UUID
	Identifier string

	IsLocked   bool
	LockedAt   *time.Time
	LockReason string
}

// TwoFactorCredential is the shared-secret state held by the account
// directory. Enabled flips to true only after the first successful
// verification following setup.
type TwoFactorCredential struct {
	Secret  string
	Enabled bool
}
