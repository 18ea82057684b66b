package pseudonym

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"curia/pkg/domain"
)

// CachedStore layers a redis read-through cache over a Store. Mappings are
// immutable once created, so cached values can never go stale; the TTL only
// bounds memory. Only the forward (subject -> code) direction is cached: the
// reverse path stays a privileged direct table read.
//
// The ownership guard must not cache; this store is not used by it.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

const cacheKeyPrefix = "pseudonym:subject:"

// NewCachedStore wraps inner with a redis cache. Returns inner unchanged
// when client is nil so wiring can treat redis as optional.
func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) Store {
	if client == nil {
		return inner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedStore) Create(ctx context.Context, mapping Mapping) error {
	if err := c.inner.Create(ctx, mapping); err != nil {
		return err
	}
	c.put(ctx, mapping)
	return nil
}

func (c *CachedStore) FindBySubject(ctx context.Context, subjectID domain.SubjectID) (*Mapping, error) {
	key := cacheKeyPrefix + subjectID.String()
	code, err := c.client.Get(ctx, key).Result()
	if err == nil && code != "" {
		return &Mapping{SubjectID: subjectID, Code: code}, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "pseudonym cache read failed", "error", err)
	}

	mapping, err := c.inner.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, *mapping)
	return mapping, nil
}

func (c *CachedStore) FindByCode(ctx context.Context, code string) (*Mapping, error) {
	return c.inner.FindByCode(ctx, code)
}

func (c *CachedStore) put(ctx context.Context, mapping Mapping) {
	key := cacheKeyPrefix + mapping.SubjectID.String()
	if err := c.client.Set(ctx, key, mapping.Code, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "pseudonym cache write failed", "error", err)
	}
}

var _ Store = (*CachedStore)(nil)
