// Package service owns the identifier attachment lifecycle: resolve-then-
// persist creation, listing, detach, and the cascade cleanup operation
// entity-deletion workflows must invoke.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/audit"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/identifier"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/metrics"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/models"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/store"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/resolver"
	dErrors "github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/domain-errors"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/platform/sentinel"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/requestcontext"
)

// Resolver is the slice of the resolution cache engine the lifecycle needs.
type Resolver interface {
	Resolve(ctx context.Context, id identifier.Identifier, ref *resolver.EntityRef) (resolver.Resolution, error)
}

// Service coordinates attachment creation, listing, and removal.
type Service struct {
	store    store.Store
	resolver Resolver
	audit    *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(st store.Store, res Resolver, auditPub *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    st,
		resolver: res,
		audit:    auditPub,
		logger:   logger,
		metrics:  m,
	}
}

// Attach validates, resolves, and persists a new identifier attachment.
//
// Resolution runs without entity context: no row exists yet, so the call is
// fresh by construction. A resolution failure fails the whole attach; no
// row is ever created without resolved metadata.
//
// Duplicates are not pre-checked. The insert relies on the store's
// uniqueness constraint, so two concurrent attaches of the same
// (entityType, entityId, identifier) race cleanly: one row, one conflict.
func (s *Service) Attach(ctx context.Context, rawEntityType string, entityID int64, rawIdentifier string) (*models.Attachment, error) {
	entityType, err := models.ParseEntityType(rawEntityType)
	if err != nil {
		return nil, err
	}
	id, err := identifier.Normalize(rawIdentifier)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, id, nil)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	payload := res.Payload
	att := &models.Attachment{
		ID:           uuid.New(),
		EntityType:   entityType,
		EntityID:     entityID,
		Identifier:   id.Curie,
		Name:         payload.Name,
		Description:  payload.Description,
		ResourceType: payload.ResourceType,
		URL:          payload.URL,
		Payload:      &payload,
		LastResolved: res.LastResolvedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Insert(ctx, att); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"identifier %s is already attached to this %s", id.Curie, entityType)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attachment")
	}

	s.metrics.RecordAttachmentCreated()
	s.audit.Emit(ctx, audit.Event{
		Action:     audit.ActionAttach,
		EntityType: string(entityType),
		EntityID:   entityID,
		Identifier: id.Curie,
	})
	return att, nil
}

// List returns every attachment for one entity. Both parameters are
// required; an entity with no attachments yields an empty slice, not an
// error.
func (s *Service) List(ctx context.Context, rawEntityType string, entityID int64) ([]*models.Attachment, error) {
	entityType, err := models.ParseEntityType(rawEntityType)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attachments")
	}
	return attachments, nil
}

// Detach removes one attachment by key. No ownership check happens at this
// layer; authorization is the caller's concern.
func (s *Service) Detach(ctx context.Context, attachmentID uuid.UUID) error {
	att, err := s.store.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "attachment %s does not exist", attachmentID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attachment")
	}
	if err := s.store.Delete(ctx, attachmentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "attachment %s does not exist", attachmentID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete attachment")
	}

	s.metrics.RecordAttachmentsRemoved(1)
	s.audit.Emit(ctx, audit.Event{
		Action:     audit.ActionDetach,
		EntityType: string(att.EntityType),
		EntityID:   att.EntityID,
		Identifier: att.Identifier,
	})
	return nil
}

// CascadeDelete removes every attachment referencing one entity, returning
// the removed count. The reference is polymorphic with no foreign key, so
// entity-owning deletion workflows must call this within their own deletion
// transaction boundary; nothing else cleans these rows up.
func (s *Service) CascadeDelete(ctx context.Context, entityType models.EntityType, entityID int64) (int64, error) {
	if _, err := models.ParseEntityType(string(entityType)); err != nil {
		return 0, err
	}
	removed, err := s.store.DeleteByEntity(ctx, entityType, entityID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cascade attachment deletion")
	}
	if removed > 0 {
		s.metrics.RecordAttachmentsRemoved(int(removed))
		s.audit.Emit(ctx, audit.Event{
			Action:     audit.ActionCascade,
			EntityType: string(entityType),
			EntityID:   entityID,
			Detail:     "removed " + strconv.FormatInt(removed, 10) + " attachments",
		})
	}
	return removed, nil
}
