package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"curia/internal/decision"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
	txcontext "curia/pkg/platform/tx"
)

// PostgresStore persists decisions, their history and signed documents.
//
// Schema:
//
//	CREATE TABLE decisions (
//	    id          UUID PRIMARY KEY,
//	    case_id     UUID NOT NULL REFERENCES cases(id),
//	    author_id   UUID NOT NULL,
//	    type        TEXT NOT NULL,
//	    title       TEXT NOT NULL,
//	    body        TEXT NOT NULL DEFAULT '',
//	    state       TEXT NOT NULL,
//	    version     INT NOT NULL,
//	    document_id UUID,
//	    signed_at   TIMESTAMPTZ,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE decision_history (
//	    id          UUID PRIMARY KEY,
//	    decision_id UUID NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
//	    version     INT NOT NULL,
//	    title       TEXT NOT NULL,
//	    body        TEXT NOT NULL,
//	    state       TEXT NOT NULL,
//	    changed_by  UUID NOT NULL,
//	    changed_at  TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE decision_documents (
//	    id               UUID PRIMARY KEY,
//	    decision_id      UUID NOT NULL UNIQUE REFERENCES decisions(id),
//	    case_id          UUID NOT NULL REFERENCES cases(id),
//	    signed_by        UUID NOT NULL,
//	    signer_pseudonym TEXT NOT NULL,
//	    content_hash     TEXT NOT NULL,
//	    signature_key_id TEXT NOT NULL,
//	    signature_alg    TEXT NOT NULL,
//	    signature        BYTEA NOT NULL,
//	    artifact_uri     TEXT NOT NULL,
//	    signed_at        TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db     *sql.DB
	cases  CaseMutator
	logger *slog.Logger
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

func WithLogger(logger *slog.Logger) Option {
	return func(s *PostgresStore) { s.logger = logger }
}

// NewPostgres builds the store. The case store is written to from inside the
// signing transaction (state cascade, timeline entry) via the transaction
// carried in the context.
func NewPostgres(db *sql.DB, cases CaseMutator, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db, cases: cases, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

const decisionColumns = `id, case_id, author_id, type, title, body, state,
       version, document_id, signed_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *decision.Decision) error {
	query := `
		INSERT INTO decisions (
			id, case_id, author_id, type, title, body, state,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.CaseID),
		uuid.UUID(d.AuthorID),
		string(d.Type),
		d.Title,
		d.Body,
		string(d.State),
		d.Version,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.DecisionID) (*decision.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1`
	return scanDecision(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *PostgresStore) ListByCase(ctx context.Context, caseID domain.CaseID) ([]decision.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE case_id = $1 ORDER BY created_at ASC`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []decision.Decision
	for rows.Next() {
		d, err := scanDecisionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// Update persists new content plus the pre-image snapshot in one transaction,
// guarded by the version the caller observed.
func (s *PostgresStore) Update(ctx context.Context, d *decision.Decision, expectedVersion int, history decision.HistoryEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE decisions
			SET title = $2, body = $3, version = $4, updated_at = $5
			WHERE id = $1 AND version = $6 AND state = $7
		`, uuid.UUID(d.ID), d.Title, d.Body, d.Version, d.UpdatedAt, expectedVersion, string(decision.StateDraft))
		if err != nil {
			return fmt.Errorf("update decision: %w", err)
		}
		if err := requireOneRowOr(result, s.probeDecision(ctx, tx, d.ID)); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO decision_history (id, decision_id, version, title, body, state, changed_by, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, history.ID, uuid.UUID(history.DecisionID), history.Version, history.Title,
			history.Body, string(history.State), uuid.UUID(history.ChangedBy), history.ChangedAt)
		if err != nil {
			return fmt.Errorf("insert decision history: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Transition(ctx context.Context, id domain.DecisionID, from, to decision.State) error {
	result, err := s.runner(ctx).ExecContext(ctx, `
		UPDATE decisions SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3
	`, uuid.UUID(id), string(to), string(from))
	if err != nil {
		return fmt.Errorf("transition decision: %w", err)
	}
	return requireOneRowOr(result, s.probeDecision(ctx, s.runner(ctx), id))
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.DecisionID) error {
	result, err := s.runner(ctx).ExecContext(ctx, `DELETE FROM decisions WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete decision: %w", err)
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

func (s *PostgresStore) ListHistory(ctx context.Context, id domain.DecisionID) ([]decision.HistoryEntry, error) {
	rows, err := s.runner(ctx).QueryContext(ctx, `
		SELECT id, decision_id, version, title, body, state, changed_by, changed_at
		FROM decision_history
		WHERE decision_id = $1
		ORDER BY version ASC, changed_at ASC
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("query decision history: %w", err)
	}
	defer rows.Close()

	var out []decision.HistoryEntry
	for rows.Next() {
		var (
			entry      decision.HistoryEntry
			decisionID uuid.UUID
			changedBy  uuid.UUID
			state      string
		)
		if err := rows.Scan(&entry.ID, &decisionID, &entry.Version, &entry.Title,
			&entry.Body, &state, &changedBy, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.DecisionID = domain.DecisionID(decisionID)
		entry.ChangedBy = domain.SubjectID(changedBy)
		entry.State = decision.State(state)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindDocument(ctx context.Context, id domain.DocumentID) (*decision.Document, error) {
	row := s.runner(ctx).QueryRowContext(ctx, `
		SELECT id, decision_id, case_id, signed_by, signer_pseudonym, content_hash,
		       signature_key_id, signature_alg, signature, artifact_uri, signed_at
		FROM decision_documents
		WHERE id = $1
	`, uuid.UUID(id))

	var (
		doc        decision.Document
		docID      uuid.UUID
		decisionID uuid.UUID
		caseID     uuid.UUID
		signedBy   uuid.UUID
	)
	err := row.Scan(&docID, &decisionID, &caseID, &signedBy, &doc.SignerPseudonym,
		&doc.ContentHash, &doc.SignatureKeyID, &doc.SignatureAlg, &doc.Signature,
		&doc.ArtifactURI, &doc.SignedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ID = domain.DocumentID(docID)
	doc.DecisionID = domain.DecisionID(decisionID)
	doc.CaseID = domain.CaseID(caseID)
	doc.SignedBy = domain.SubjectID(signedBy)
	return &doc, nil
}

// inTx runs fn inside the context transaction when one is present, otherwise
// inside a fresh one.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// probeDecision distinguishes a missing row from a stale expectation after a
// guarded update touched zero rows.
func (s *PostgresStore) probeDecision(ctx context.Context, runner dbRunner, id domain.DecisionID) func() error {
	return func() error {
		var exists bool
		err := runner.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM decisions WHERE id = $1)`, uuid.UUID(id)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("probe decision: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrStale
	}
}

func requireOneRowOr(result sql.Result, onZero func() error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return onZero()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row *sql.Row) (*decision.Decision, error) {
	d, err := scanDecisionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func scanDecisionRow(row rowScanner) (*decision.Decision, error) {
	var (
		d          decision.Decision
		id         uuid.UUID
		caseID     uuid.UUID
		authorID   uuid.UUID
		docType    string
		state      string
		documentID *uuid.UUID
		signedAt   *time.Time
	)
	err := row.Scan(&id, &caseID, &authorID, &docType, &d.Title, &d.Body, &state,
		&d.Version, &documentID, &signedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	d.ID = domain.DecisionID(id)
	d.CaseID = domain.CaseID(caseID)
	d.AuthorID = domain.SubjectID(authorID)
	d.Type = decision.Type(docType)
	d.State = decision.State(state)
	if documentID != nil {
		v := domain.DocumentID(*documentID)
		d.DocumentID = &v
	}
	d.SignedAt = signedAt
	return &d, nil
}
