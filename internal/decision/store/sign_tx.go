package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"curia/internal/decision"
	"curia/pkg/platform/sentinel"
	txcontext "curia/pkg/platform/tx"
)

// CommitSignature runs the signing transaction. The decision row is locked,
// the state, version and author observed before the lock are re-validated,
// and the document insert, the SIGNED update, the optional case cascade and
// the best-effort timeline entry all land in one commit.
//
// Rendering, hashing and the signature itself already happened outside this
// transaction; the lock covers only the rows being written.
func (s *PostgresStore) CommitSignature(ctx context.Context, commit decision.SignCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sign tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		state    string
		version  int
		authorID uuid.UUID
	)
	err = tx.QueryRowContext(ctx, `
		SELECT state, version, author_id
		FROM decisions
		WHERE id = $1
		FOR UPDATE
	`, uuid.UUID(commit.DecisionID)).Scan(&state, &version, &authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("lock decision: %w", err)
	}

	switch {
	case state == string(decision.StateSigned) || state == string(decision.StateVoided):
		return sentinel.ErrImmutable
	case state != string(decision.StateReadyToSign),
		version != commit.ExpectedVersion,
		authorID != uuid.UUID(commit.ExpectedAuthor):
		return sentinel.ErrStale
	}

	doc := commit.Document
	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_documents (
			id, decision_id, case_id, signed_by, signer_pseudonym, content_hash,
			signature_key_id, signature_alg, signature, artifact_uri, signed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(doc.ID), uuid.UUID(doc.DecisionID), uuid.UUID(doc.CaseID),
		uuid.UUID(doc.SignedBy), doc.SignerPseudonym, doc.ContentHash,
		doc.SignatureKeyID, doc.SignatureAlg, doc.Signature, doc.ArtifactURI, doc.SignedAt)
	if err != nil {
		return fmt.Errorf("insert signed document: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE decisions
		SET state = $2, document_id = $3, signed_at = $4, updated_at = $4
		WHERE id = $1 AND state = $5 AND version = $6
	`, uuid.UUID(commit.DecisionID), string(decision.StateSigned), uuid.UUID(doc.ID),
		commit.SignedAt, string(decision.StateReadyToSign), commit.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("mark decision signed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrStale
	}

	// The case cascade and timeline entry run through the case store, which
	// picks the transaction up from the context.
	txCtx := txcontext.WithTx(ctx, tx)
	if commit.CaseState != nil {
		if err := s.cases.UpdateState(txCtx, doc.CaseID, *commit.CaseState); err != nil {
			return fmt.Errorf("cascade case state: %w", err)
		}
	}

	if commit.Timeline != nil {
		s.appendTimelineSavepoint(txCtx, tx, commit)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sign tx: %w", err)
	}
	return nil
}

// appendTimelineSavepoint writes the timeline entry inside a savepoint so its
// failure never poisons the signing commit. The context must already carry
// the transaction for the case store.
func (s *PostgresStore) appendTimelineSavepoint(ctx context.Context, tx *sql.Tx, commit decision.SignCommit) {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT timeline_entry`); err != nil {
		s.logger.WarnContext(ctx, "timeline savepoint failed, entry skipped",
			"decision_id", commit.DecisionID, "error", err)
		return
	}

	if err := s.cases.AppendTimeline(ctx, *commit.Timeline); err != nil {
		s.logger.WarnContext(ctx, "timeline entry failed during signing, rolled back to savepoint",
			"decision_id", commit.DecisionID, "error", err)
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT timeline_entry`); rbErr != nil {
			s.logger.ErrorContext(ctx, "savepoint rollback failed",
				"decision_id", commit.DecisionID, "error", rbErr)
		}
		return
	}
	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT timeline_entry`); err != nil {
		s.logger.WarnContext(ctx, "savepoint release failed",
			"decision_id", commit.DecisionID, "error", err)
	}
}
