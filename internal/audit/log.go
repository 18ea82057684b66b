// Package audit implements the append-only, tamper-evident event log.
//
// Submitted events drain through a single in-process sequential queue so
// that, within one running instance, persistence and subscriber side effects
// fire in submission order. The ordering guarantee does not extend across
// multiple instances; cross-instance consumers must rely on the server
// timestamp plus the chained hash.
package audit

import (
	"context"
	"log/slog"

	"curia/pkg/domain"
	"curia/pkg/requestcontext"
)

// Store persists audit events. Append is called by the drain worker only,
// one event at a time, in chain order.
type Store interface {
	Append(ctx context.Context, event Event) error
	// Last returns the highest-seq event, or nil when the log is empty.
	Last(ctx context.Context) (*Event, error)
	// List returns matching events ordered by event time descending, plus
	// the total match count before paging.
	List(ctx context.Context, filter Filter, page Page) ([]Event, int, error)
	// ListRange returns events with fromSeq <= seq <= toSeq in ascending
	// seq order.
	ListRange(ctx context.Context, fromSeq, toSeq int64) ([]Event, error)
}

// Subscriber receives events after they are durably appended. Subscriber
// failures are logged and never propagate.
type Subscriber interface {
	Notify(ctx context.Context, event Event)
}

// Log records, queries and verifies audit events.
type Log struct {
	store       Store
	logger      *slog.Logger
	subscribers []Subscriber
	inbox       chan Event
	lastHash    string
	primed      bool
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the structured logger used for local failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithSubscriber registers a post-persistence subscriber.
func WithSubscriber(sub Subscriber) Option {
	return func(l *Log) { l.subscribers = append(l.subscribers, sub) }
}

// WithQueueDepth overrides the submission queue capacity.
func WithQueueDepth(depth int) Option {
	return func(l *Log) { l.inbox = make(chan Event, depth) }
}

const defaultQueueDepth = 1024

// NewLog constructs the audit log around a store.
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{
		store:  store,
		logger: slog.Default(),
		inbox:  make(chan Event, defaultQueueDepth),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record submits an event for durable, ordered persistence and returns its
// pre-assigned ID. It never blocks and never fails the caller's primary
// operation: when the queue is saturated the event is dropped and the drop
// is logged locally.
func (l *Log) Record(ctx context.Context, entry Entry) domain.EventID {
	event := Event{
		ID:          domain.NewEventID(),
		Timestamp:   requestcontext.Now(ctx),
		ActorID:     entry.ActorID,
		Type:        entry.Type,
		Severity:    entry.Severity,
		Description: entry.Description,
		Details:     entry.Details,
	}
	select {
	case l.inbox <- event:
	default:
		l.logger.ErrorContext(ctx, "audit queue saturated, event dropped",
			"event_type", event.Type,
			"actor_id", event.ActorID,
		)
	}
	return event.ID
}

// Run drains the submission queue until ctx is cancelled. Store failures are
// logged and the event is discarded; they must never surface as a failure of
// the operation that emitted the event.
func (l *Log) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-l.inbox:
			l.persist(ctx, event)
		}
	}
}

// Drain synchronously persists everything currently queued. Intended for
// shutdown and for tests that need deterministic visibility.
func (l *Log) Drain(ctx context.Context) {
	for {
		select {
		case event := <-l.inbox:
			l.persist(ctx, event)
		default:
			return
		}
	}
}

func (l *Log) persist(ctx context.Context, event Event) {
	if !l.primed {
		last, err := l.store.Last(ctx)
		if err != nil {
			l.logger.ErrorContext(ctx, "audit chain head load failed, event dropped",
				"event_type", event.Type, "error", err)
			return
		}
		if last != nil {
			l.lastHash = last.Hash
		}
		l.primed = true
	}

	event.PrevHash = l.lastHash
	event.Hash = ComputeHash(l.lastHash, event)

	if err := l.store.Append(ctx, event); err != nil {
		l.logger.ErrorContext(ctx, "audit append failed, event dropped",
			"event_type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	l.lastHash = event.Hash

	for _, sub := range l.subscribers {
		sub.Notify(ctx, event)
	}
}

// Query returns matching events ordered by event time descending, plus the
// total match count.
func (l *Log) Query(ctx context.Context, filter Filter, page Page) ([]Event, int, error) {
	if page.Limit <= 0 {
		page.Limit = 50
	}
	return l.store.List(ctx, filter, page)
}

// Verify recomputes the hash chain over [fromSeq, toSeq] and reports every
// row whose stored hash or chain link diverges from the recomputation.
func (l *Log) Verify(ctx context.Context, fromSeq, toSeq int64) (Report, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}

	prevHash := ""
	if fromSeq > 1 {
		prev, err := l.store.ListRange(ctx, fromSeq-1, fromSeq-1)
		if err != nil {
			return Report{}, err
		}
		if len(prev) == 1 {
			prevHash = prev[0].Hash
		}
	}

	rows, err := l.store.ListRange(ctx, fromSeq, toSeq)
	if err != nil {
		return Report{}, err
	}

	report := Report{Checked: len(rows)}
	for _, row := range rows {
		if row.PrevHash != prevHash || ComputeHash(prevHash, row) != row.Hash {
			report.MismatchedSeq = append(report.MismatchedSeq, row.Seq)
		}
		prevHash = row.Hash
	}
	return report, nil
}
