package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL for the audit_events table. Exposed for migration
// tooling and the integration test harness.
func Schema() string { return schema }

// PostgresStore persists audit events durably. It is the production store;
// a write failure is logged and swallowed by the publisher, never surfaced
// to the business operation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (
			occurred_at, action, actor_id, entity_type, entity_id,
			identifier, detail, client_ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp, event.Action, event.ActorID, event.EntityType, event.EntityID,
		event.Identifier, event.Detail, event.ClientIP, event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
