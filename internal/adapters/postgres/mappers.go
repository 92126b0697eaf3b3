package postgres

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainAccount(row accountModel) domain.Account {
	return domain.Account{
		AccountID:  row.AccountID,
		Identifier: row.Identifier,
		IsLocked:   row.IsLocked,
		LockedAt:   row.LockedAt,
		LockReason: row.LockReason,
	}
}

func toDomainSession(row accountSessionModel) domain.Session {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	var activity []domain.ActivityEntry
	if row.ActivityLog != "" {
		_ = json.Unmarshal([]byte(row.ActivityLog), &activity)
	}
	return domain.Session{
		Token:   row.Token,
		OwnerID: row.OwnerID,
		Origin: domain.Origin{
			IPAddress:   ip,
			UserAgent:   row.UserAgent,
			DeviceClass: domain.DeviceClass(row.DeviceClass),
			Browser:     row.Browser,
			OS:          row.OS,
		},
		Fingerprint:        row.Fingerprint,
		CreatedAt:          row.CreatedAt,
		ExpiresAt:          row.ExpiresAt,
		LastActivityAt:     row.LastActivityAt,
		IsActive:           row.IsActive,
		InvalidatedAt:      row.InvalidatedAt,
		InvalidatedBy:      row.InvalidatedBy,
		InvalidationReason: domain.InvalidationReason(row.InvalidationReason),
		RequiresTwoFactor:  row.RequiresTwoFactor,
		TwoFactorVerified:  row.TwoFactorVerified,
		Activity:           activity,
	}
}

func toSessionModel(session domain.Session) (accountSessionModel, error) {
	activity, err := json.Marshal(session.Activity)
	if err != nil {
		return accountSessionModel{}, err
	}
	return accountSessionModel{
		Token:              session.Token,
		OwnerID:            session.OwnerID,
		IPAddress:          nullableString(session.Origin.IPAddress),
		UserAgent:          session.Origin.UserAgent,
		DeviceClass:        string(session.Origin.DeviceClass),
		Browser:            session.Origin.Browser,
		OS:                 session.Origin.OS,
		Fingerprint:        session.Fingerprint,
		CreatedAt:          session.CreatedAt,
		ExpiresAt:          session.ExpiresAt,
		LastActivityAt:     session.LastActivityAt,
		IsActive:           session.IsActive,
		InvalidatedAt:      session.InvalidatedAt,
		InvalidatedBy:      session.InvalidatedBy,
		InvalidationReason: string(session.InvalidationReason),
		RequiresTwoFactor:  session.RequiresTwoFactor,
		TwoFactorVerified:  session.TwoFactorVerified,
		ActivityLog:        string(activity),
	}, nil
}

func toDomainEvent(row securityEventModel) domain.SecurityEvent {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	var details map[string]any
	if row.Details != "" {
		_ = json.Unmarshal([]byte(row.Details), &details)
	}
	event := domain.SecurityEvent{
		ID:       row.EventID,
		OwnerID:  row.OwnerID,
		Kind:     domain.EventKind(row.Kind),
		Category: domain.EventCategory(row.Category),
		Severity: domain.Severity(row.Severity),
		Details:  details,
		Origin: domain.Origin{
			IPAddress:   ip,
			UserAgent:   row.UserAgent,
			DeviceClass: domain.DeviceClass(row.DeviceClass),
			Browser:     row.Browser,
			OS:          row.OS,
		},
		RiskScore:      row.RiskScore,
		ResponseAction: domain.ResponseAction(row.ResponseAction),
		OccurredAt:     row.OccurredAt,
	}
	if row.InvestigationStatus != nil {
		investigation := domain.Investigation{
			Status:   domain.InvestigationStatus(*row.InvestigationStatus),
			Assignee: row.InvestigationAssignee,
			Notes:    row.InvestigationNotes,
		}
		if row.InvestigationUpdatedAt != nil {
			investigation.UpdatedAt = *row.InvestigationUpdatedAt
		}
		event.Investigation = &investigation
	}
	return event
}

func toEventModel(event domain.SecurityEvent) (securityEventModel, error) {
	details := []byte("{}")
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return securityEventModel{}, err
		}
	}
	row := securityEventModel{
		EventID:        event.ID,
		OwnerID:        event.OwnerID,
		Kind:           string(event.Kind),
		Category:       string(event.Category),
		Severity:       string(event.Severity),
		Details:        string(details),
		IPAddress:      nullableString(event.Origin.IPAddress),
		UserAgent:      event.Origin.UserAgent,
		DeviceClass:    string(event.Origin.DeviceClass),
		Browser:        event.Origin.Browser,
		OS:             event.Origin.OS,
		RiskScore:      event.RiskScore,
		ResponseAction: string(event.ResponseAction),
		OccurredAt:     event.OccurredAt,
	}
	if event.Investigation != nil {
		status := string(event.Investigation.Status)
		row.InvestigationStatus = &status
		row.InvestigationAssignee = event.Investigation.Assignee
		row.InvestigationNotes = event.Investigation.Notes
		updatedAt := event.Investigation.UpdatedAt
		row.InvestigationUpdatedAt = &updatedAt
	}
	return row, nil
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
