//go:build integration

package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hatchery/contracts/spawn"
	"hatchery/internal/entropy"
	"hatchery/internal/factory/models"
	"hatchery/internal/factory/store/state"
	"hatchery/pkg/platform/sentinel"
	"hatchery/pkg/testutil/containers"
)

type PostgresStateSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *state.PostgresStateStore
	ctx      context.Context
}

func TestPostgresStateSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStateSuite))
}

func (s *PostgresStateSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = state.NewPostgres(s.postgres.Pool)
	s.ctx = context.Background()
}

func (s *PostgresStateSuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(s.ctx))
}

func (s *PostgresStateSuite) TestConfigRoundTrip() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	config, err := models.NewConfig(
		spawn.TemplateVersion{ID: 7, CodeHash: "hash-v7"},
		"admin-1",
		now,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveConfig(s.ctx, config))

	loaded, err := s.store.LoadConfig(s.ctx)
	s.Require().NoError(err)
	s.Equal(config.Template, loaded.Template)
	s.Equal(config.Admin, loaded.Admin)
	s.False(loaded.Stopped)

	// Saving again is an upsert, not an insert.
	config.ApplySetStopped(true, now.Add(time.Second))
	s.Require().NoError(s.store.SaveConfig(s.ctx, config))

	loaded, err = s.store.LoadConfig(s.ctx)
	s.Require().NoError(err)
	s.True(loaded.Stopped)
}

func (s *PostgresStateSuite) TestConfigMissing() {
	_, err := s.store.LoadConfig(s.ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStateSuite) TestSeedRoundTrip() {
	seed, err := entropy.NewSeed()
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveSeed(s.ctx, seed))

	loaded, err := s.store.LoadSeed(s.ctx)
	s.Require().NoError(err)
	s.Equal(seed, loaded)

	// Ratchet advances overwrite in place.
	next, err := entropy.NewSeed()
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveSeed(s.ctx, next))

	loaded, err = s.store.LoadSeed(s.ctx)
	s.Require().NoError(err)
	s.Equal(next, loaded)
}

func (s *PostgresStateSuite) TestPendingSlotOverwrites() {
	first := &models.PendingRegistration{
		Password:  spawn.PasswordFromBytes([spawn.PasswordLen]byte{0x01}),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.store.SavePending(s.ctx, first))

	second := &models.PendingRegistration{
		Password:  spawn.PasswordFromBytes([spawn.PasswordLen]byte{0x02}),
		CreatedAt: first.CreatedAt.Add(time.Second),
	}
	s.Require().NoError(s.store.SavePending(s.ctx, second))

	loaded, err := s.store.LoadPending(s.ctx)
	s.Require().NoError(err)
	s.True(loaded.Password.Equal(second.Password))
	s.False(loaded.Password.Equal(first.Password))
}

func (s *PostgresStateSuite) TestPendingClear() {
	pending := &models.PendingRegistration{
		Password:  spawn.PasswordFromBytes([spawn.PasswordLen]byte{0x01}),
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.store.SavePending(s.ctx, pending))
	s.Require().NoError(s.store.ClearPending(s.ctx))

	_, err := s.store.LoadPending(s.ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	// Clearing an empty slot is a no-op.
	s.Require().NoError(s.store.ClearPending(s.ctx))
}
