package subject

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"curia/internal/audit"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
	"curia/pkg/requestcontext"
)

// Store persists officials.
type Store interface {
	Create(ctx context.Context, subject *Subject) error
	FindByID(ctx context.Context, id domain.SubjectID) (*Subject, error)
	UpdateStatus(ctx context.Context, id domain.SubjectID, status Status) error
}

// PseudonymIssuer assigns a public code to sensitive officials at
// provisioning time.
type PseudonymIssuer interface {
	Issue(ctx context.Context, subjectID domain.SubjectID) (string, error)
}

// AuditRecorder records provisioning events.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) domain.EventID
}

// CredentialEnroller creates a signing credential for a newly provisioned
// judge.
type CredentialEnroller interface {
	Enroll(subjectID domain.SubjectID) (string, error)
}

// Service handles administrative provisioning of officials.
type Service struct {
	store       Store
	pseudonyms  PseudonymIssuer
	recorder    AuditRecorder
	credentials CredentialEnroller
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithCredentialEnroller wires signing credential creation into judge
// provisioning.
func WithCredentialEnroller(enroller CredentialEnroller) Option {
	return func(s *Service) { s.credentials = enroller }
}

func NewService(store Store, pseudonyms PseudonymIssuer, recorder AuditRecorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject store is required")
	}
	if recorder == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit recorder is required")
	}
	s := &Service{store: store, pseudonyms: pseudonyms, recorder: recorder, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Provision creates an official. Administrators only. Judges get a pseudonym
// at provisioning time so their public identity exists before their first
// case assignment.
func (s *Service) Provision(ctx context.Context, fullName string, role domain.Role, courtUnit string, caller domain.Caller) (*Subject, error) {
	if caller.Role != domain.RoleAdministrator {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators may provision officials")
	}

	created, err := NewSubject(domain.NewSubjectID(), strings.TrimSpace(fullName), role, strings.TrimSpace(courtUnit), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.store.Create(ctx, created); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create subject")
	}

	details := map[string]string{
		"subject_id": created.ID.String(),
		"role":       string(role),
		"court_unit": created.CourtUnit,
	}
	if role == domain.RoleJudge && s.credentials != nil {
		keyID, err := s.credentials.Enroll(created.ID)
		if err != nil {
			// Provisioning stands; the judge cannot sign until a credential
			// is enrolled separately.
			s.logger.WarnContext(ctx, "credential enrollment at provisioning failed",
				"subject_id", created.ID, "error", err)
		} else {
			details["signing_key_id"] = keyID
		}
	}
	if role == domain.RoleJudge && s.pseudonyms != nil {
		code, err := s.pseudonyms.Issue(ctx, created.ID)
		if err != nil {
			// Provisioning stands; the pseudonym is issued lazily on first
			// case assignment instead.
			s.logger.WarnContext(ctx, "pseudonym issue at provisioning failed",
				"subject_id", created.ID, "error", err)
		} else {
			details["pseudonym"] = code
			s.recorder.Record(ctx, audit.Entry{
				ActorID:     caller.SubjectID,
				Type:        audit.EventPseudonymIssued,
				Severity:    audit.SeverityLow,
				Description: "pseudonym issued for judge",
				Details: map[string]string{
					"subject_id": created.ID.String(),
					"pseudonym":  code,
				},
			})
		}
	}

	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventSubjectProvisioned,
		Severity:    audit.SeverityLow,
		Description: "official provisioned",
		Details:     details,
	})
	return created, nil
}

// Get returns one official.
func (s *Service) Get(ctx context.Context, id domain.SubjectID) (*Subject, error) {
	found, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subject")
	}
	return found, nil
}

// SetStatus suspends or reactivates an official. Administrators only.
func (s *Service) SetStatus(ctx context.Context, id domain.SubjectID, status Status, caller domain.Caller) error {
	if caller.Role != domain.RoleAdministrator {
		return dErrors.New(dErrors.CodeForbidden, "only administrators may change official status")
	}
	if status != StatusActive && status != StatusSuspended {
		return dErrors.New(dErrors.CodeValidation, "unknown status")
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update subject status")
	}
	return nil
}
