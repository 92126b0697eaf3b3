package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session domain.Session) error {
	rec, err := toSessionModel(session)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *sessionRepository) FindByToken(ctx context.Context, token string) (domain.Session, error) {
	var rec accountSessionModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) MarkActivity(ctx context.Context, token string, at time.Time, entry domain.ActivityEntry, newExpiry *time.Time) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// Append in SQL so two concurrent validates both land their entries.
	// The log grows one entry per call, so evicting the head once the cap is
	// reached keeps it bounded.
	updates := map[string]any{
		"last_activity_at": at,
		"activity_log": gorm.Expr(
			"CASE WHEN jsonb_array_length(activity_log) >= ? THEN (activity_log - 0) || ?::jsonb ELSE activity_log || ?::jsonb END",
			domain.MaxActivityEntries, string(raw), string(raw),
		),
	}
	if newExpiry != nil {
		updates["expires_at"] = *newExpiry
	}
	res := r.db.WithContext(ctx).
		Model(&accountSessionModel{}).
		Where("token = ?", token).
		Where("is_active = TRUE").
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionInvalid
	}
	return nil
}

func (r *sessionRepository) InvalidateIfActive(ctx context.Context, token string, reason domain.InvalidationReason, by string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&accountSessionModel{}).
		Where("token = ?", token).
		Where("is_active = TRUE").
		Updates(map[string]any{
			"is_active":           false,
			"invalidated_at":      at,
			"invalidated_by":      by,
			"invalidation_reason": string(reason),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepository) InvalidateAllForOwner(ctx context.Context, ownerID uuid.UUID, reason domain.InvalidationReason, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&accountSessionModel{}).
		Where("owner_id = ?", ownerID).
		Where("is_active = TRUE").
		Updates(map[string]any{
			"is_active":           false,
			"invalidated_at":      at,
			"invalidation_reason": string(reason),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *sessionRepository) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&accountSessionModel{}).
		Where("is_active = TRUE").
		Where("expires_at <= ?", now).
		Updates(map[string]any{
			"is_active":           false,
			"invalidated_at":      now,
			"invalidation_reason": string(domain.InvalidationExpired),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *sessionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	var rows []accountSessionModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSession(row))
	}
	return result, nil
}
