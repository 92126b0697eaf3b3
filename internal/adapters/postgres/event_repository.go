package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
	"gorm.io/gorm"
)

type eventRepository struct {
	db *gorm.DB
}

func (r *eventRepository) Insert(ctx context.Context, event domain.SecurityEvent) error {
	rec, err := toEventModel(event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *eventRepository) List(ctx context.Context, filter ports.EventFilter) ([]domain.SecurityEvent, error) {
	query := r.db.WithContext(ctx).Model(&securityEventModel{})
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", string(filter.Category))
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", string(filter.Severity))
	}
	if filter.Since != nil {
		query = query.Where("occurred_at >= ?", *filter.Since)
	}

	var rows []securityEventModel
	if err := query.Order("occurred_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.SecurityEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainEvent(row))
	}
	return result, nil
}

func (r *eventRepository) CountBySeverity(ctx context.Context, since time.Time) (map[domain.Severity]int64, error) {
	var rows []struct {
		Severity string `gorm:"column:severity"`
		Total    int64  `gorm:"column:total"`
	}
	if err := r.db.WithContext(ctx).
		Model(&securityEventModel{}).
		Select("severity, COUNT(*) AS total").
		Where("occurred_at >= ?", since).
		Group("severity").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.Severity]int64, len(rows))
	for _, row := range rows {
		counts[domain.Severity(row.Severity)] = row.Total
	}
	return counts, nil
}

func (r *eventRepository) UpdateInvestigation(ctx context.Context, eventID uuid.UUID, investigation domain.Investigation) error {
	res := r.db.WithContext(ctx).
		Model(&securityEventModel{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"investigation_status":     string(investigation.Status),
			"investigation_assignee":   investigation.Assignee,
			"investigation_notes":      investigation.Notes,
			"investigation_updated_at": investigation.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
