// Package signing provides the cryptographic collaborators of the decision
// lifecycle: a credential vault producing detached signatures, a
// deterministic document renderer, and durable artifact storage.
package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
)

// Signature is a detached signature over a document digest.
type Signature struct {
	KeyID     string
	Algorithm string
	Value     []byte
}

const algorithmEd25519 = "Ed25519"

type credential struct {
	keyID   string
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	revoked bool
}

// Vault holds per-official signing credentials. Failures surface as
// CodeCredential with a generic message; key material and provider state are
// never exposed to callers.
type Vault struct {
	mu    sync.RWMutex
	creds map[domain.SubjectID]*credential
}

func NewVault() *Vault {
	return &Vault{creds: make(map[domain.SubjectID]*credential)}
}

// Enroll generates a credential for an official and returns its key ID.
// Enrolling again rotates the key.
func (v *Vault) Enroll(subjectID domain.SubjectID) (string, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	keyID := fmt.Sprintf("key-%s", domain.NewEventID())

	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds[subjectID] = &credential{keyID: keyID, private: private, public: public}
	return keyID, nil
}

// Revoke disables an official's credential without deleting it, so past
// signatures stay verifiable.
func (v *Vault) Revoke(subjectID domain.SubjectID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cred, ok := v.creds[subjectID]; ok {
		cred.revoked = true
	}
}

// Sign produces a detached signature over digest using the official's
// credential.
func (v *Vault) Sign(_ context.Context, signerID domain.SubjectID, digest []byte) (Signature, error) {
	v.mu.RLock()
	cred, ok := v.creds[signerID]
	v.mu.RUnlock()

	if !ok || cred.revoked {
		return Signature{}, dErrors.New(dErrors.CodeCredential, "signing credential unavailable")
	}
	return Signature{
		KeyID:     cred.keyID,
		Algorithm: algorithmEd25519,
		Value:     ed25519.Sign(cred.private, digest),
	}, nil
}

// HasValidCredential reports whether the official can sign right now.
func (v *Vault) HasValidCredential(_ context.Context, subjectID domain.SubjectID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cred, ok := v.creds[subjectID]
	return ok && !cred.revoked
}

// VerifySignature checks a detached signature against the official's current
// credential.
func (v *Vault) VerifySignature(signerID domain.SubjectID, digest []byte, sig Signature) bool {
	v.mu.RLock()
	cred, ok := v.creds[signerID]
	v.mu.RUnlock()
	if !ok || sig.KeyID != cred.keyID {
		return false
	}
	return ed25519.Verify(cred.public, digest, sig.Value)
}
