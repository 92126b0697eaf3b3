package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"gorm.io/gorm"
)

// accountDirectory is the GORM adapter over the shared accounts table. The
// security core only ever touches lock state and two-factor credential
// columns; profile data stays untouched.
type accountDirectory struct {
	db *gorm.DB
}

func (d *accountDirectory) FindByIdentifier(ctx context.Context, identifier string) (domain.Account, error) {
	var rec accountModel
	if err := d.db.WithContext(ctx).Where("identifier = ?", identifier).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (d *accountDirectory) FindByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	var rec accountModel
	if err := d.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (d *accountDirectory) Lock(ctx context.Context, accountID uuid.UUID, reason string, lockedAt time.Time) error {
	res := d.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"is_locked":   true,
			"locked_at":   lockedAt,
			"lock_reason": reason,
			"updated_at":  lockedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (d *accountDirectory) Unlock(ctx context.Context, accountID uuid.UUID) error {
	res := d.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"is_locked":   false,
			"locked_at":   nil,
			"lock_reason": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (d *accountDirectory) GetTwoFactorCredential(ctx context.Context, accountID uuid.UUID) (domain.TwoFactorCredential, error) {
	var rec accountModel
	if err := d.db.WithContext(ctx).
		Select("twofactor_secret", "twofactor_enabled").
		Where("account_id = ?", accountID).
		Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TwoFactorCredential{}, domain.ErrNotFound
		}
		return domain.TwoFactorCredential{}, err
	}
	return domain.TwoFactorCredential{Secret: rec.TwoFactorSecret, Enabled: rec.TwoFactorEnabled}, nil
}

func (d *accountDirectory) SetTwoFactorCredential(ctx context.Context, accountID uuid.UUID, secret string, enabled bool, updatedAt time.Time) error {
	res := d.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"twofactor_secret":     secret,
			"twofactor_enabled":    enabled,
			"twofactor_updated_at": updatedAt,
			"updated_at":           updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (d *accountDirectory) ReplaceBackupCodes(ctx context.Context, accountID uuid.UUID, codeDigests []string, createdAt time.Time) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&backupCodeModel{}).Error; err != nil {
			return err
		}
		if len(codeDigests) == 0 {
			return nil
		}
		records := make([]backupCodeModel, 0, len(codeDigests))
		for _, digest := range codeDigests {
			records = append(records, backupCodeModel{
				AccountID:  accountID,
				CodeDigest: digest,
				CreatedAt:  createdAt,
			})
		}
		return tx.Create(&records).Error
	})
}

func (d *accountDirectory) ConsumeBackupCode(ctx context.Context, accountID uuid.UUID, codeDigest string, usedAt time.Time) (bool, error) {
	res := d.db.WithContext(ctx).
		Model(&backupCodeModel{}).
		Where("account_id = ?", accountID).
		Where("code_digest = ?", codeDigest).
		Where("used_at IS NULL").
		Update("used_at", usedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
