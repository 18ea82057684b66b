package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"curia/internal/pseudonym"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
)

// PostgresStore persists pseudonym mappings.
//
// Schema:
//
//	CREATE TABLE pseudonym_mappings (
//	    subject_id UUID PRIMARY KEY,
//	    code       TEXT NOT NULL UNIQUE,
//	    issued_at  TIMESTAMPTZ NOT NULL
//	);
//
// Rows are never updated or deleted; the mapping is immutable once created.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, mapping pseudonym.Mapping) error {
	query := `
		INSERT INTO pseudonym_mappings (subject_id, code, issued_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(mapping.SubjectID),
		mapping.Code,
		mapping.IssuedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert pseudonym mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindBySubject(ctx context.Context, subjectID domain.SubjectID) (*pseudonym.Mapping, error) {
	query := `SELECT subject_id, code, issued_at FROM pseudonym_mappings WHERE subject_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(subjectID)))
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*pseudonym.Mapping, error) {
	query := `SELECT subject_id, code, issued_at FROM pseudonym_mappings WHERE code = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, code))
}

func (s *PostgresStore) scanOne(row *sql.Row) (*pseudonym.Mapping, error) {
	var (
		mapping   pseudonym.Mapping
		subjectID uuid.UUID
	)
	err := row.Scan(&subjectID, &mapping.Code, &mapping.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan pseudonym mapping: %w", err)
	}
	mapping.SubjectID = domain.SubjectID(subjectID)
	return &mapping, nil
}
