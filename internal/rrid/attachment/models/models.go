// Package models defines the identifier attachment aggregate and the closed
// set of entity kinds it may reference.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/domain-errors"
)

// EntityType tags which DOCiD table an attachment references. The reference
// is polymorphic by convention: the store holds no foreign key, so this
// allowlist is the single source of truth for both the application check and
// the schema-level CHECK constraint.
type EntityType string

const (
	EntityPublication  EntityType = "publication"
	EntityOrganization EntityType = "organization"
	EntityProject      EntityType = "project"
	EntityFunder       EntityType = "funder"
)

// AllowedEntityTypes lists every accepted entity kind, in schema order.
var AllowedEntityTypes = []EntityType{
	EntityPublication,
	EntityOrganization,
	EntityProject,
	EntityFunder,
}

// ParseEntityType validates a raw tag against the allowlist.
func ParseEntityType(raw string) (EntityType, error) {
	for _, et := range AllowedEntityTypes {
		if EntityType(raw) == et {
			return et, nil
		}
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown entity type: %q", raw)
}

// ResolvedPayload is the fixed-shape normalized resolver document persisted
// with an attachment. It never carries raw upstream structure.
type ResolvedPayload struct {
	Name         string `json:"name"`
	Identifier   string `json:"identifier"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	ResourceType string `json:"resource_type"`
	Citation     string `json:"citation"`
	MentionCount int    `json:"mention_count"`
}

// Attachment binds one external identifier to one local entity.
//
// Invariants:
//   - (EntityType, EntityID, Identifier) is unique; the same identifier may
//     attach to many entities but not twice to the same one
//   - EntityType is always a member of AllowedEntityTypes
//   - Payload, when present, holds only the normalized field set
//
// Mutated only by cache refresh (Payload, LastResolvedAt); destroyed by
// detach or cascade when the owning entity is deleted.
type Attachment struct {
	ID           uuid.UUID        `json:"id"`
	EntityType   EntityType       `json:"entity_type"`
	EntityID     int64            `json:"entity_id"`
	Identifier   string           `json:"identifier"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	ResourceType string           `json:"resource_type"`
	URL          string           `json:"url"`
	Payload      *ResolvedPayload `json:"resolved_payload,omitempty"`
	LastResolved time.Time        `json:"last_resolved_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
