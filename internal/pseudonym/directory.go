// Package pseudonym issues irreversible public identifiers for sensitive
// subjects (judges). A pseudonym is derived with a keyed one-way function
// over the subject ID, fresh randomness, and the issue timestamp, so the
// mapping cannot be recomputed or inverted: recovering the real subject
// behind a code requires a privileged direct lookup of the mapping table.
package pseudonym

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
	"curia/pkg/requestcontext"
)

// Mapping binds a real subject to its public code. One-to-one and immutable
// once created.
type Mapping struct {
	SubjectID domain.SubjectID
	Code      string
	IssuedAt  time.Time
}

// Store persists mappings. Create must enforce uniqueness of both the
// subject ID and the code, returning sentinel.ErrConflict on either.
type Store interface {
	Create(ctx context.Context, mapping Mapping) error
	FindBySubject(ctx context.Context, subjectID domain.SubjectID) (*Mapping, error)
	// FindByCode is the privileged reverse path. It is a plain table lookup;
	// no code path inverts the derivation function.
	FindByCode(ctx context.Context, code string) (*Mapping, error)
}

// maxIssueAttempts bounds collision retries before Issue fails with
// CodeExhausted. Collisions on a 60-bit code are vanishingly rare; hitting
// the bound indicates a broken randomness source, not bad luck.
const maxIssueAttempts = 5

// codeEncoding spells codes in unambiguous uppercase base32.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Directory issues and resolves pseudonyms. The derivation key is an
// explicit configuration value fixed at construction; there is no lazy
// process-global state.
type Directory struct {
	key   []byte
	store Store
}

// NewDirectory validates the key and wraps the store. The key must be at
// least 16 bytes; it is the only secret the directory holds.
func NewDirectory(key []byte, store Store) (*Directory, error) {
	if len(key) < 16 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pseudonym key must be at least 16 bytes")
	}
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pseudonym store is required")
	}
	return &Directory{key: key, store: store}, nil
}

// Issue returns the subject's pseudonym, creating it on first call.
// Idempotent: repeated calls return the stored mapping unchanged.
func (d *Directory) Issue(ctx context.Context, subjectID domain.SubjectID) (string, error) {
	if subjectID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject_id is required")
	}

	existing, err := d.store.FindBySubject(ctx, subjectID)
	if err == nil {
		return existing.Code, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up pseudonym mapping")
	}

	now := requestcontext.Now(ctx)
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code, err := d.derive(subjectID, now)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive pseudonym")
		}

		err = d.store.Create(ctx, Mapping{SubjectID: subjectID, Code: code, IssuedAt: now})
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store pseudonym mapping")
		}

		// A conflict is either a concurrent Issue for the same subject
		// (return theirs) or a code collision (retry with new randomness).
		existing, lookupErr := d.store.FindBySubject(ctx, subjectID)
		if lookupErr == nil {
			return existing.Code, nil
		}
		if !errors.Is(lookupErr, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(lookupErr, dErrors.CodeInternal, "failed to re-check pseudonym mapping")
		}
	}
	return "", dErrors.Newf(dErrors.CodeExhausted,
		"pseudonym collision retries exhausted after %d attempts", maxIssueAttempts)
}

// Resolve returns the pseudonym for a subject, or a NotFound error when no
// mapping has been issued.
func (d *Directory) Resolve(ctx context.Context, subjectID domain.SubjectID) (string, error) {
	mapping, err := d.store.FindBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "no pseudonym issued for subject")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve pseudonym")
	}
	return mapping.Code, nil
}

// Unmask is the privileged reverse lookup: code -> real subject. It reads
// the mapping table directly and performs no cryptographic inversion.
func (d *Directory) Unmask(ctx context.Context, code string) (domain.SubjectID, error) {
	mapping, err := d.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.SubjectID{}, dErrors.New(dErrors.CodeNotFound, "unknown pseudonym")
		}
		return domain.SubjectID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to unmask pseudonym")
	}
	return mapping.SubjectID, nil
}

// derive computes one candidate code: keyed BLAKE2b over subject ID, 16
// fresh random bytes, and the timestamp. The randomness and timestamp are
// not stored, which is what makes the mapping irreversible even to a holder
// of the key.
func (d *Directory) derive(subjectID domain.SubjectID, now time.Time) (string, error) {
	mac, err := blake2b.New256(d.key)
	if err != nil {
		return "", fmt.Errorf("init keyed hash: %w", err)
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("read randomness: %w", err)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))

	raw := subjectID.String()
	mac.Write([]byte(raw))
	mac.Write(nonce[:])
	mac.Write(ts[:])
	sum := mac.Sum(nil)

	// 12 base32 characters = 60 bits of the digest.
	return "J-" + codeEncoding.EncodeToString(sum)[:12], nil
}
