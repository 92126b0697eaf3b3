package postgres

import (
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
	"gorm.io/gorm"
)

// Repositories bundles every Postgres-backed port for the composition root.
type Repositories struct {
	Sessions  ports.SessionRepository
	Events    ports.SecurityEventRepository
	Directory ports.AccountDirectory
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Sessions:  &sessionRepository{db: db},
		Events:    &eventRepository{db: db},
		Directory: &accountDirectory{db: db},
	}
}
