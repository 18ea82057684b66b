package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"curia/internal/casefile"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
	txcontext "curia/pkg/platform/tx"
)

// PostgresStore persists cases and case timelines.
//
// Schema:
//
//	CREATE TABLE cases (
//	    id                UUID PRIMARY KEY,
//	    assigned_judge_id UUID NOT NULL,
//	    judge_pseudonym   TEXT NOT NULL,
//	    registered_by     UUID NOT NULL,
//	    state             TEXT NOT NULL,
//	    court_unit        TEXT NOT NULL,
//	    subject_matter    TEXT NOT NULL DEFAULT '',
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    updated_at        TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE case_timeline (
//	    id          UUID PRIMARY KEY,
//	    case_id     UUID NOT NULL REFERENCES cases(id),
//	    occurred_at TIMESTAMPTZ NOT NULL,
//	    kind        TEXT NOT NULL,
//	    description TEXT NOT NULL,
//	    decision_id UUID
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, c *casefile.Case) error {
	query := `
		INSERT INTO cases (
			id, assigned_judge_id, judge_pseudonym, registered_by,
			state, court_unit, subject_matter, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.AssignedJudgeID),
		c.AssignedJudgePseudonym,
		uuid.UUID(c.RegisteredBy),
		string(c.State),
		c.CourtUnit,
		c.SubjectMatter,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CaseID) (*casefile.Case, error) {
	query := `
		SELECT id, assigned_judge_id, judge_pseudonym, registered_by,
		       state, court_unit, subject_matter, created_at, updated_at
		FROM cases
		WHERE id = $1
	`
	return scanCase(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *PostgresStore) Reassign(ctx context.Context, id domain.CaseID, judgeID domain.SubjectID, judgePseudonym string) error {
	query := `
		UPDATE cases
		SET assigned_judge_id = $2, judge_pseudonym = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(id), uuid.UUID(judgeID), judgePseudonym)
	if err != nil {
		return fmt.Errorf("reassign case: %w", err)
	}
	return requireOneRow(result)
}

func (s *PostgresStore) UpdateState(ctx context.Context, id domain.CaseID, state casefile.ProceduralState) error {
	query := `UPDATE cases SET state = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.runner(ctx).ExecContext(ctx, query, uuid.UUID(id), string(state))
	if err != nil {
		return fmt.Errorf("update case state: %w", err)
	}
	return requireOneRow(result)
}

func (s *PostgresStore) AppendTimeline(ctx context.Context, entry casefile.TimelineEntry) error {
	query := `
		INSERT INTO case_timeline (id, case_id, occurred_at, kind, description, decision_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	var decisionID *uuid.UUID
	if entry.DecisionID != nil {
		raw := uuid.UUID(*entry.DecisionID)
		decisionID = &raw
	}
	_, err := s.runner(ctx).ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.CaseID),
		entry.OccurredAt,
		entry.Kind,
		entry.Description,
		decisionID,
	)
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTimeline(ctx context.Context, id domain.CaseID) ([]casefile.TimelineEntry, error) {
	query := `
		SELECT id, case_id, occurred_at, kind, description, decision_id
		FROM case_timeline
		WHERE case_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query case timeline: %w", err)
	}
	defer rows.Close()

	var entries []casefile.TimelineEntry
	for rows.Next() {
		var (
			entry      casefile.TimelineEntry
			caseID     uuid.UUID
			decisionID *uuid.UUID
		)
		if err := rows.Scan(&entry.ID, &caseID, &entry.OccurredAt, &entry.Kind, &entry.Description, &decisionID); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entry.CaseID = domain.CaseID(caseID)
		if decisionID != nil {
			d := domain.DecisionID(*decisionID)
			entry.DecisionID = &d
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline entries: %w", err)
	}
	return entries, nil
}

func scanCase(row *sql.Row) (*casefile.Case, error) {
	var (
		c            casefile.Case
		id           uuid.UUID
		judgeID      uuid.UUID
		registeredBy uuid.UUID
		state        string
	)
	err := row.Scan(&id, &judgeID, &c.AssignedJudgePseudonym, &registeredBy,
		&state, &c.CourtUnit, &c.SubjectMatter, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan case: %w", err)
	}
	c.ID = domain.CaseID(id)
	c.AssignedJudgeID = domain.SubjectID(judgeID)
	c.RegisteredBy = domain.SubjectID(registeredBy)
	c.State = casefile.ProceduralState(state)
	return &c, nil
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
