// Package store persists identifier attachments. Implementations return
// pkg/platform/sentinel errors for infrastructure facts; the service layer
// translates those into domain errors.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/models"
)

// Store is the durable home of identifier attachments.
//
// Insert returns sentinel.ErrConflict when the (entityType, entityID,
// identifier) uniqueness constraint is violated; callers rely on this for
// race-free duplicate handling instead of pre-checking existence.
type Store interface {
	Insert(ctx context.Context, att *models.Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error)
	FindByEntityIdentifier(ctx context.Context, entityType models.EntityType, entityID int64, identifier string) (*models.Attachment, error)
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID int64) ([]*models.Attachment, error)

	// UpdateResolution overwrites the cached resolver payload for one row.
	// Last-writer-wins; concurrent refreshes converge on the latest data.
	UpdateResolution(ctx context.Context, id uuid.UUID, payload *models.ResolvedPayload, resolvedAt time.Time) error

	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByEntity(ctx context.Context, entityType models.EntityType, entityID int64) (int64, error)
}
