package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/models"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL for the identifier_attachments table. Exposed for
// migration tooling and the integration test harness.
func Schema() string { return schema }

// PostgresStore persists attachments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed attachment store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const attachmentColumns = `
	id, entity_type, entity_id, identifier,
	name, description, resource_type, url,
	resolved_payload, last_resolved_at, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, att *models.Attachment) error {
	if att == nil {
		return fmt.Errorf("attachment is required")
	}
	payload, err := marshalPayload(att.Payload)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO identifier_attachments (` + attachmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		att.ID, att.EntityType, att.EntityID, att.Identifier,
		att.Name, att.Description, att.ResourceType, att.URL,
		payload, nullTime(att.LastResolved), att.CreatedAt, att.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM identifier_attachments WHERE id = $1`
	att, err := scanAttachment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return att, nil
}

func (s *PostgresStore) FindByEntityIdentifier(ctx context.Context, entityType models.EntityType, entityID int64, identifier string) (*models.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + `
		FROM identifier_attachments
		WHERE entity_type = $1 AND entity_id = $2 AND identifier = $3
	`
	att, err := scanAttachment(s.db.QueryRowContext(ctx, query, entityType, entityID, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attachment: %w", err)
	}
	return att, nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityType models.EntityType, entityID int64) ([]*models.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + `
		FROM identifier_attachments
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, identifier
	`
	rows, err := s.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]*models.Attachment, 0)
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

func (s *PostgresStore) UpdateResolution(ctx context.Context, id uuid.UUID, payload *models.ResolvedPayload, resolvedAt time.Time) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	query := `
		UPDATE identifier_attachments
		SET resolved_payload = $2,
		    last_resolved_at = $3,
		    name = COALESCE($4, name),
		    description = COALESCE($5, description),
		    resource_type = COALESCE($6, resource_type),
		    url = COALESCE($7, url),
		    updated_at = $3
		WHERE id = $1
	`
	var name, description, resourceType, url *string
	if payload != nil {
		name, description = &payload.Name, &payload.Description
		resourceType, url = &payload.ResourceType, &payload.URL
	}
	res, err := s.db.ExecContext(ctx, query, id, raw, resolvedAt, name, description, resourceType, url)
	if err != nil {
		return fmt.Errorf("update resolution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM identifier_attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByEntity(ctx context.Context, entityType models.EntityType, entityID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identifier_attachments WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete attachments by entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete attachments by entity: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(row rowScanner) (*models.Attachment, error) {
	var (
		att      models.Attachment
		raw      []byte
		resolved sql.NullTime
	)
	err := row.Scan(
		&att.ID, &att.EntityType, &att.EntityID, &att.Identifier,
		&att.Name, &att.Description, &att.ResourceType, &att.URL,
		&raw, &resolved, &att.CreatedAt, &att.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolved.Valid {
		att.LastResolved = resolved.Time
	}
	if len(raw) > 0 {
		var payload models.ResolvedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode resolved payload: %w", err)
		}
		att.Payload = &payload
	}
	return &att, nil
}

func marshalPayload(payload *models.ResolvedPayload) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode resolved payload: %w", err)
	}
	return raw, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
