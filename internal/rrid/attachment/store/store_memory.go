package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/models"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/platform/sentinel"
)

type entityKey struct {
	entityType models.EntityType
	entityID   int64
	identifier string
}

// InMemoryStore holds attachments in process memory. It mirrors the
// PostgresStore contract, including the uniqueness constraint, so service
// unit tests run without containers.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*models.Attachment
	byKey map[entityKey]uuid.UUID
}

// NewInMemory creates an empty attachment store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[uuid.UUID]*models.Attachment),
		byKey: make(map[entityKey]uuid.UUID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, att *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{att.EntityType, att.EntityID, att.Identifier}
	if _, exists := s.byKey[key]; exists {
		return sentinel.ErrConflict
	}
	clone := *att
	s.byID[att.ID] = &clone
	s.byKey[key] = att.ID
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	att, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *att
	return &clone, nil
}

func (s *InMemoryStore) FindByEntityIdentifier(_ context.Context, entityType models.EntityType, entityID int64, identifier string) (*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[entityKey{entityType, entityID, identifier}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType models.EntityType, entityID int64) ([]*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attachments := make([]*models.Attachment, 0)
	for _, att := range s.byID {
		if att.EntityType == entityType && att.EntityID == entityID {
			clone := *att
			attachments = append(attachments, &clone)
		}
	}
	sort.Slice(attachments, func(i, j int) bool {
		if attachments[i].CreatedAt.Equal(attachments[j].CreatedAt) {
			return attachments[i].Identifier < attachments[j].Identifier
		}
		return attachments[i].CreatedAt.Before(attachments[j].CreatedAt)
	})
	return attachments, nil
}

func (s *InMemoryStore) UpdateResolution(_ context.Context, id uuid.UUID, payload *models.ResolvedPayload, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if payload != nil {
		clone := *payload
		att.Payload = &clone
		att.Name = payload.Name
		att.Description = payload.Description
		att.ResourceType = payload.ResourceType
		att.URL = payload.URL
	} else {
		att.Payload = nil
	}
	att.LastResolved = resolvedAt
	att.UpdatedAt = resolvedAt
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byKey, entityKey{att.EntityType, att.EntityID, att.Identifier})
	delete(s.byID, id)
	return nil
}

func (s *InMemoryStore) DeleteByEntity(_ context.Context, entityType models.EntityType, entityID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, att := range s.byID {
		if att.EntityType == entityType && att.EntityID == entityID {
			delete(s.byKey, entityKey{att.EntityType, att.EntityID, att.Identifier})
			delete(s.byID, id)
			removed++
		}
	}
	return removed, nil
}
