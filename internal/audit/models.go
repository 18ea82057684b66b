package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"curia/pkg/domain"
)

// Severity ranks how security-relevant an event is. Denied access attempts
// are high severity; routine grants are low.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// EventType names a security-relevant action. The set is closed so queries
// and alerting rules can rely on it.
type EventType string

const (
	EventAuthorizationGranted EventType = "authorization_granted"
	EventAuthorizationDenied  EventType = "authorization_denied"
	EventDecisionCreated      EventType = "decision_created"
	EventDecisionUpdated      EventType = "decision_updated"
	EventDecisionPrepared     EventType = "decision_prepared"
	EventDecisionSigned       EventType = "decision_signed"
	EventDecisionDeleted      EventType = "decision_deleted"
	EventDecisionVoided       EventType = "decision_voided"
	EventCaseRegistered       EventType = "case_registered"
	EventCaseReassigned       EventType = "case_reassigned"
	EventPseudonymIssued      EventType = "pseudonym_issued"
	EventSubjectProvisioned   EventType = "subject_provisioned"
	EventIntegrityChecked     EventType = "integrity_checked"
)

// Entry is what callers submit. The log assigns identity, timestamp, chain
// position and hash; callers only describe what happened.
type Entry struct {
	ActorID     domain.SubjectID
	Type        EventType
	Severity    Severity
	Description string
	Details     map[string]string
}

// Event is a persisted, integrity-hashed audit row. Rows are append-only:
// application logic never updates or deletes them.
//
// Hash covers the canonicalized event fields plus the previous row's hash,
// so both single-row tampering and row deletion/reordering are detectable.
type Event struct {
	ID          domain.EventID
	Seq         int64
	Timestamp   time.Time
	ActorID     domain.SubjectID
	Type        EventType
	Severity    Severity
	Description string
	Details     map[string]string
	PrevHash    string
	Hash        string
}

// canonical renders the hashed fields in a deterministic order. Details keys
// are sorted; values must not contain the field separator semantics because
// each pair is length-independent (keys cannot repeat in a map).
func (e Event) canonical() string {
	var b strings.Builder
	b.WriteString(e.ID.String())
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(e.ActorID.String())
	b.WriteByte('|')
	b.WriteString(string(e.Type))
	b.WriteByte('|')
	b.WriteString(string(e.Severity))
	b.WriteByte('|')
	b.WriteString(e.Description)

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.Details[k])
	}
	return b.String()
}

// ComputeHash derives the chained integrity hash for an event given the
// previous row's hash. The genesis row chains from the empty string.
func ComputeHash(prevHash string, e Event) string {
	sum := sha256.Sum256([]byte(prevHash + "\n" + e.canonical()))
	return hex.EncodeToString(sum[:])
}

// Filter narrows a Query. Zero values mean "any".
type Filter struct {
	ActorID  domain.SubjectID
	Type     EventType
	Severity Severity
	From     time.Time
	To       time.Time
}

// Page bounds a Query result set.
type Page struct {
	Limit  int
	Offset int
}

// Report is the outcome of a chain verification pass.
type Report struct {
	Checked       int
	MismatchedSeq []int64
}

// Intact reports whether every checked row re-hashed to its stored value.
func (r Report) Intact() bool { return len(r.MismatchedSeq) == 0 }
