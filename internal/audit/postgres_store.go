package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists entries to the emergency_logs table.
type PostgresStore struct {
	db     pgQuerier
	tracer trace.Tracer
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("audit: pgx pool required")
	}
	return newPostgresStoreWithDB(pool)
}

func newPostgresStoreWithDB(db pgQuerier) *PostgresStore {
	if db == nil {
		panic("audit: db required")
	}
	return &PostgresStore{db: db, tracer: otel.Tracer("mentalcare/audit")}
}

func (s *PostgresStore) RecordEmergencyActivation(ctx context.Context, entry Entry) error {
	ctx, span := s.tracer.Start(ctx, "audit.record_emergency_activation")
	defer span.End()
	span.SetAttributes(attribute.String("audit.conversation_id", entry.ConversationID))

	query := `
		INSERT INTO emergency_logs (
			id, conversation_id, session_id, user_id, user_name, user_email,
			emergency_contact_name, emergency_contact_phone, trigger_reason, source, activated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.Exec(ctx, query,
		entry.ID,
		entry.ConversationID,
		nullable(entry.SessionID),
		nullable(entry.UserID),
		nullable(entry.UserName),
		nullable(entry.UserEmail),
		nullable(entry.EmergencyContactName),
		nullable(entry.EmergencyContactPhone),
		entry.TriggerReason,
		nullable(entry.Source),
		entry.ActivatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("audit: insert emergency log: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "audit.list_emergency_logs")
	defer span.End()

	query := `
		SELECT id, conversation_id, COALESCE(session_id, ''), COALESCE(user_id, ''),
			   COALESCE(user_name, ''), COALESCE(user_email, ''),
			   COALESCE(emergency_contact_name, ''), COALESCE(emergency_contact_phone, ''),
			   trigger_reason, COALESCE(source, ''), activated_at
		FROM emergency_logs
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if filter.ConversationID != "" {
		query += fmt.Sprintf(" AND conversation_id = $%d", argIdx)
		args = append(args, filter.ConversationID)
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND activated_at >= $%d", argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND activated_at <= $%d", argIdx)
		args = append(args, filter.Until)
		argIdx++
	}

	query += " ORDER BY activated_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("audit: query emergency logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var activatedAt time.Time
		if err := rows.Scan(
			&e.ID, &e.ConversationID, &e.SessionID, &e.UserID,
			&e.UserName, &e.UserEmail,
			&e.EmergencyContactName, &e.EmergencyContactPhone,
			&e.TriggerReason, &e.Source, &activatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan emergency log: %w", err)
		}
		e.ActivatedAt = activatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate emergency logs: %w", err)
	}
	return entries, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
