package key

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/suite"

	"hatchery/pkg/platform/sentinel"
)

type KeyStoreSuite struct {
	suite.Suite
	store *InMemoryKeyStore
	ctx   context.Context
}

func (s *KeyStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func TestKeyStoreSuite(t *testing.T) {
	suite.Run(t, new(KeyStoreSuite))
}

func (s *KeyStoreSuite) TestPutAndGet() {
	s.Run("stores and retrieves a digest", func() {
		digest := sha256.Sum256([]byte("vk_abc"))
		s.Require().NoError(s.store.Put(s.ctx, "owner-1", digest))

		got, err := s.store.Get(s.ctx, "owner-1")
		s.Require().NoError(err)
		s.Equal(digest, got)
	})

	s.Run("replaces an existing digest", func() {
		first := sha256.Sum256([]byte("vk_first"))
		second := sha256.Sum256([]byte("vk_second"))
		s.Require().NoError(s.store.Put(s.ctx, "owner-2", first))
		s.Require().NoError(s.store.Put(s.ctx, "owner-2", second))

		got, err := s.store.Get(s.ctx, "owner-2")
		s.Require().NoError(err)
		s.Equal(second, got)
	})

	s.Run("returns ErrNotFound for unknown address", func() {
		_, err := s.store.Get(s.ctx, "never-seen")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("addresses do not share digests", func() {
		digest := sha256.Sum256([]byte("vk_mine"))
		s.Require().NoError(s.store.Put(s.ctx, "owner-3", digest))

		_, err := s.store.Get(s.ctx, "owner-4")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
