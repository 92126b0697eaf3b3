package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID          uuid.UUID  `gorm:"column:account_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Identifier         string     `gorm:"column:identifier"`
	IsLocked           bool       `gorm:"column:is_locked"`
	LockedAt           *time.Time `gorm:"column:locked_at"`
	LockReason         string     `gorm:"column:lock_reason"`
	TwoFactorSecret    string     `gorm:"column:twofactor_secret"`
	TwoFactorEnabled   bool       `gorm:"column:twofactor_enabled"`
	TwoFactorUpdatedAt *time.Time `gorm:"column:twofactor_updated_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type accountSessionModel struct {
	Token              string     `gorm:"column:token;primaryKey"`
	OwnerID            uuid.UUID  `gorm:"column:owner_id"`
	IPAddress          *string    `gorm:"column:ip_address"`
	UserAgent          string     `gorm:"column:user_agent"`
	DeviceClass        string     `gorm:"column:device_class"`
	Browser            string     `gorm:"column:browser"`
	OS                 string     `gorm:"column:os"`
	Fingerprint        string     `gorm:"column:fingerprint"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	ExpiresAt          time.Time  `gorm:"column:expires_at"`
	LastActivityAt     time.Time  `gorm:"column:last_activity_at"`
	IsActive           bool       `gorm:"column:is_active"`
	InvalidatedAt      *time.Time `gorm:"column:invalidated_at"`
	InvalidatedBy      string     `gorm:"column:invalidated_by"`
	InvalidationReason string     `gorm:"column:invalidation_reason"`
	RequiresTwoFactor  bool       `gorm:"column:requires_twofactor"`
	TwoFactorVerified  bool       `gorm:"column:twofactor_verified"`
	ActivityLog        string     `gorm:"column:activity_log;type:jsonb"`
}

func (accountSessionModel) TableName() string { return "account_sessions" }

type securityEventModel struct {
	EventID                uuid.UUID  `gorm:"column:event_id;type:uuid;primaryKey"`
	OwnerID                *uuid.UUID `gorm:"column:owner_id"`
	Kind                   string     `gorm:"column:kind"`
	Category               string     `gorm:"column:category"`
	Severity               string     `gorm:"column:severity"`
	Details                string     `gorm:"column:details;type:jsonb"`
	IPAddress              *string    `gorm:"column:ip_address"`
	UserAgent              string     `gorm:"column:user_agent"`
	DeviceClass            string     `gorm:"column:device_class"`
	Browser                string     `gorm:"column:browser"`
	OS                     string     `gorm:"column:os"`
	RiskScore              int        `gorm:"column:risk_score"`
	ResponseAction         string     `gorm:"column:response_action"`
	OccurredAt             time.Time  `gorm:"column:occurred_at"`
	InvestigationStatus    *string    `gorm:"column:investigation_status"`
	InvestigationAssignee  string     `gorm:"column:investigation_assignee"`
	InvestigationNotes     string     `gorm:"column:investigation_notes"`
	InvestigationUpdatedAt *time.Time `gorm:"column:investigation_updated_at"`
}

func (securityEventModel) TableName() string { return "security_events" }

type backupCodeModel struct {
	CodeID     uuid.UUID  `gorm:"column:code_id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID  uuid.UUID  `gorm:"column:account_id"`
	CodeDigest string     `gorm:"column:code_digest"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UsedAt     *time.Time `gorm:"column:used_at"`
}

func (backupCodeModel) TableName() string { return "twofactor_backup_codes" }
