// Package postgres persists audit events in an append-only table.
//
// Schema (migrations live with the deployment):
//
//	CREATE TABLE audit_events (
//	    seq         BIGSERIAL PRIMARY KEY,
//	    id          UUID NOT NULL UNIQUE,
//	    timestamp   TIMESTAMPTZ NOT NULL,
//	    actor_id    UUID NOT NULL,
//	    event_type  TEXT NOT NULL,
//	    severity    TEXT NOT NULL,
//	    description TEXT NOT NULL,
//	    details     JSONB NOT NULL DEFAULT '{}',
//	    prev_hash   TEXT NOT NULL,
//	    hash        TEXT NOT NULL
//	);
//
// No UPDATE or DELETE statements exist in this package; tamper evidence
// relies on the chained hash column, not on database privileges alone.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"curia/internal/audit"
	"curia/pkg/domain"
	txcontext "curia/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one event row. The seq column is server-assigned.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, actor_id, event_type, severity,
			description, details, prev_hash, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(event.ID),
		event.Timestamp,
		uuid.UUID(event.ActorID),
		string(event.Type),
		string(event.Severity),
		event.Description,
		details,
		event.PrevHash,
		event.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Last returns the chain head, or nil when the log is empty.
func (s *Store) Last(ctx context.Context) (*audit.Event, error) {
	query := selectColumns + ` FROM audit_events ORDER BY seq DESC LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit chain head: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// List returns matching events newest-first with the total match count.
func (s *Store) List(ctx context.Context, filter audit.Filter, page audit.Page) ([]audit.Event, int, error) {
	where, args := buildFilter(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_events` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	query := fmt.Sprintf("%s FROM audit_events%s ORDER BY timestamp DESC, seq DESC LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListRange returns rows with fromSeq <= seq <= toSeq in ascending seq order.
func (s *Store) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	query := selectColumns + ` FROM audit_events WHERE seq >= $1 AND seq <= $2 ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("query audit range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

const selectColumns = `
	SELECT seq, id, timestamp, actor_id, event_type, severity,
	       description, details, prev_hash, hash`

func buildFilter(filter audit.Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(filter.ActorID))
	}
	if filter.Type != "" {
		add("event_type = $%d", string(filter.Type))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if !filter.From.IsZero() {
		add("timestamp >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("timestamp <= $%d", filter.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event      audit.Event
			eventID    uuid.UUID
			actorID    uuid.UUID
			eventType  string
			severity   string
			rawDetails []byte
		)
		err := rows.Scan(
			&event.Seq,
			&eventID,
			&event.Timestamp,
			&actorID,
			&eventType,
			&severity,
			&event.Description,
			&rawDetails,
			&event.PrevHash,
			&event.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = domain.EventID(eventID)
		event.ActorID = domain.SubjectID(actorID)
		event.Type = audit.EventType(eventType)
		event.Severity = audit.Severity(severity)
		if len(rawDetails) > 0 {
			if err := json.Unmarshal(rawDetails, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
