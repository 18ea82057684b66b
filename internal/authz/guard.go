// Package authz implements the ownership authorization guard.
//
// Every case-scoped action passes through the guard before any mutation. The
// guard re-reads the resource's current owner from the store on every call
// and never trusts ownership carried in tokens or cached snapshots:
// correctness after a reassignment outranks the cost of one fresh read.
// Every call, grant or deny, emits an audit event.
package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"curia/internal/audit"
	"curia/internal/authz/metrics"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
	"curia/pkg/requestcontext"
)

// AuditRecorder is the slice of the audit log the guard needs. Record never
// fails the caller's operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) domain.EventID
}

// Grant is the successful outcome of a check. Snapshot is the resource as
// read during the check, so granted callers operate on exactly the state
// that was authorized.
type Grant struct {
	OwnerID  domain.SubjectID
	Snapshot any
}

// Guard checks callers against live resource ownership.
type Guard struct {
	descriptors map[ResourceKind]Descriptor
	recorder    AuditRecorder
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard constructs a guard. The recorder is required: an unauditable
// guard must not exist.
func NewGuard(recorder AuditRecorder, opts ...Option) (*Guard, error) {
	if recorder == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit recorder is required")
	}
	g := &Guard{
		descriptors: make(map[ResourceKind]Descriptor),
		recorder:    recorder,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Register binds a resource kind to its ownership descriptor.
func (g *Guard) Register(kind ResourceKind, descriptor Descriptor) {
	g.descriptors[kind] = descriptor
}

// Authorize allows the caller iff the live owner attribute matches, the
// caller is an administrator, or the caller is a clerk matching the
// resource's registering-clerk attribute. NotFound and Forbidden are
// distinguishable outcomes; both paths emit an audit event.
func (g *Guard) Authorize(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, caller domain.Caller) (*Grant, error) {
	descriptor, ok := g.descriptors[kind]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no descriptor registered for resource kind %q", kind)
	}
	if caller.SubjectID.IsNil() {
		g.recordDeny(ctx, kind, resourceID, domain.SubjectID{}, caller, "caller identity missing")
		return nil, dErrors.New(dErrors.CodeForbidden, "caller identity is required")
	}

	ownership, err := descriptor.FetchOwnership(ctx, resourceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			g.recordDeny(ctx, kind, resourceID, domain.SubjectID{}, caller, "resource not found")
			return nil, dErrors.Newf(dErrors.CodeNotFound, "%s not found", kind)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch resource ownership")
	}

	if !g.allowed(ownership, caller) {
		g.recordDeny(ctx, kind, resourceID, ownership.OwnerID, caller, "ownership mismatch")
		return nil, dErrors.Newf(dErrors.CodeForbidden, "caller does not own this %s", kind)
	}

	g.recordGrant(ctx, kind, resourceID, ownership.OwnerID, caller)
	return &Grant{OwnerID: ownership.OwnerID, Snapshot: ownership.Snapshot}, nil
}

func (g *Guard) allowed(ownership Ownership, caller domain.Caller) bool {
	if caller.Role == domain.RoleAdministrator {
		return true
	}
	if caller.Role == domain.RoleClerk {
		return !ownership.RegisteredBy.IsNil() && caller.SubjectID == ownership.RegisteredBy
	}
	return caller.SubjectID == ownership.OwnerID
}

func (g *Guard) recordGrant(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, ownerID domain.SubjectID, caller domain.Caller) {
	g.metrics.IncrementDecision(string(kind), string(caller.Role), "grant")
	g.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventAuthorizationGranted,
		Severity:    audit.SeverityLow,
		Description: "access granted to " + string(kind),
		Details: map[string]string{
			"resource_kind": string(kind),
			"resource_id":   resourceID.String(),
			"owner_id":      ownerID.String(),
			"caller_role":   string(caller.Role),
		},
	})
}

func (g *Guard) recordDeny(ctx context.Context, kind ResourceKind, resourceID uuid.UUID, ownerID domain.SubjectID, caller domain.Caller, reason string) {
	g.metrics.IncrementDecision(string(kind), string(caller.Role), "deny")
	g.logger.WarnContext(ctx, "authorization denied",
		"resource_kind", kind,
		"resource_id", resourceID,
		"caller_id", caller.SubjectID,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	details := map[string]string{
		"resource_kind": string(kind),
		"resource_id":   resourceID.String(),
		"caller_id":     caller.SubjectID.String(),
		"caller_role":   string(caller.Role),
		"reason":        reason,
	}
	if !ownerID.IsNil() {
		details["owner_id"] = ownerID.String()
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		details["client_ip"] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		details["user_agent"] = ua
	}
	g.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventAuthorizationDenied,
		Severity:    audit.SeverityHigh,
		Description: "access denied to " + string(kind),
		Details:     details,
	})
}
