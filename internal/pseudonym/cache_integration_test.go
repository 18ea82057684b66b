//go:build integration

package pseudonym_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"curia/internal/pseudonym"
	"curia/internal/pseudonym/store"
	"curia/pkg/domain"
	"curia/pkg/testutil/containers"
)

// countingStore wraps the memory store to observe cache hits as the absence
// of inner reads.
type countingStore struct {
	*store.InMemoryStore
	subjectReads int
}

func (c *countingStore) FindBySubject(ctx context.Context, subjectID domain.SubjectID) (*pseudonym.Mapping, error) {
	c.subjectReads++
	return c.InMemoryStore.FindBySubject(ctx, subjectID)
}

type CachedStoreSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	inner  *countingStore
	cached pseudonym.Store
}

func TestCachedStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *CachedStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.inner = &countingStore{InMemoryStore: store.NewInMemory()}
	s.cached = pseudonym.NewCachedStore(s.inner, s.redis.Client,
		time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *CachedStoreSuite) TestReadThroughServesRepeatsFromCache() {
	ctx := context.Background()
	subject := domain.NewSubjectID()
	s.Require().NoError(s.inner.Create(ctx, pseudonym.Mapping{
		SubjectID: subject, Code: "J-AAAABBBBCCCC", IssuedAt: time.Now().UTC(),
	}))

	first, err := s.cached.FindBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Equal("J-AAAABBBBCCCC", first.Code)
	s.Equal(1, s.inner.subjectReads)

	second, err := s.cached.FindBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Equal(first.Code, second.Code)
	s.Equal(1, s.inner.subjectReads, "repeat lookup must be a cache hit")
}

func (s *CachedStoreSuite) TestCreatePrimesTheCache() {
	ctx := context.Background()
	subject := domain.NewSubjectID()
	s.Require().NoError(s.cached.Create(ctx, pseudonym.Mapping{
		SubjectID: subject, Code: "J-DDDDEEEEFFFF", IssuedAt: time.Now().UTC(),
	}))

	found, err := s.cached.FindBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Equal("J-DDDDEEEEFFFF", found.Code)
	s.Equal(0, s.inner.subjectReads)
}

func (s *CachedStoreSuite) TestReverseLookupBypassesCache() {
	ctx := context.Background()
	subject := domain.NewSubjectID()
	s.Require().NoError(s.cached.Create(ctx, pseudonym.Mapping{
		SubjectID: subject, Code: "J-GGGGHHHHIIII", IssuedAt: time.Now().UTC(),
	}))

	mapping, err := s.cached.FindByCode(ctx, "J-GGGGHHHHIIII")
	s.Require().NoError(err)
	s.Equal(subject, mapping.SubjectID)

	keys, err := s.redis.Client.Keys(ctx, "pseudonym:code:*").Result()
	s.Require().NoError(err)
	s.Empty(keys, "the privileged reverse path must not be cached")
}
