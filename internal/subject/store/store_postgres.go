package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"curia/internal/subject"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
	txcontext "curia/pkg/platform/tx"
)

// PostgresStore persists court officials.
//
// Schema:
//
//	CREATE TABLE subjects (
//	    id         UUID PRIMARY KEY,
//	    full_name  TEXT NOT NULL,
//	    role       TEXT NOT NULL,
//	    court_unit TEXT NOT NULL,
//	    status     TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, sub *subject.Subject) error {
	query := `
		INSERT INTO subjects (id, full_name, role, court_unit, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(sub.ID),
		sub.FullName,
		string(sub.Role),
		sub.CourtUnit,
		string(sub.Status),
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.SubjectID) (*subject.Subject, error) {
	query := `
		SELECT id, full_name, role, court_unit, status, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`
	row := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(id))

	var (
		sub    subject.Subject
		rawID  uuid.UUID
		role   string
		status string
	)
	err := row.Scan(&rawID, &sub.FullName, &role, &sub.CourtUnit, &status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	sub.ID = domain.SubjectID(rawID)
	sub.Role = domain.Role(role)
	sub.Status = subject.Status(status)
	return &sub, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id domain.SubjectID, status subject.Status) error {
	query := `UPDATE subjects SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(id), string(status))
	if err != nil {
		return fmt.Errorf("update subject status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
