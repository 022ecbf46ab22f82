package database

import (
	"context"

	"triarb/internal/model"
)

// Repository defines the standard interface for audit persistence.
type Repository interface {
	Migrate(ctx context.Context) error
	LogAuditRecord(ctx context.Context, rec model.AuditRecord) error
}
