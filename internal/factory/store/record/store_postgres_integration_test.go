//go:build integration

package record_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
	"hatchery/internal/factory/store/record"
	"hatchery/pkg/platform/sentinel"
	"hatchery/pkg/testutil/containers"
)

type PostgresRecordSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *record.PostgresRecordStore
	ctx      context.Context
}

func TestPostgresRecordSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordSuite))
}

func (s *PostgresRecordSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = record.NewPostgres(s.postgres.Pool)
	s.ctx = context.Background()
}

func (s *PostgresRecordSuite) SetupTest() {
	s.Require().NoError(s.postgres.Reset(s.ctx))
}

func (s *PostgresRecordSuite) newRecord(addr spawn.Address, owner spawn.Address) *models.InstanceRecord {
	rec, err := models.NewInstanceRecord(
		spawn.ServiceInfo{Address: addr, CodeHash: "hash-v1"},
		"label-"+string(addr),
		owner,
		time.Now().UTC().Truncate(time.Microsecond),
	)
	s.Require().NoError(err)
	return rec
}

func (s *PostgresRecordSuite) TestCreateAndFind() {
	created := s.newRecord("inst-1", "owner-1")
	s.Require().NoError(s.store.Create(s.ctx, created))

	found, err := s.store.Find(s.ctx, "inst-1")
	s.Require().NoError(err)
	s.Equal(created.Identity, found.Identity)
	s.Equal(created.Owner, found.Owner)
	s.Equal(created.Status, found.Status)
}

func (s *PostgresRecordSuite) TestCreateConflict() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-1", "owner-1")))

	err := s.store.Create(s.ctx, s.newRecord("inst-1", "owner-2"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresRecordSuite) TestFindMissing() {
	_, err := s.store.Find(s.ctx, "inst-ghost")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRecordSuite) TestFindManyPreservesInputOrder() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-1", "owner-1")))
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-2", "owner-1")))

	records, err := s.store.FindMany(s.ctx, []spawn.Address{"inst-2", "inst-1"})
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(spawn.Address("inst-2"), records[0].Identity.Address)
	s.Equal(spawn.Address("inst-1"), records[1].Identity.Address)

	_, err = s.store.FindMany(s.ctx, []spawn.Address{"inst-1", "inst-ghost"})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRecordSuite) TestExecuteValidateThenMutate() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-1", "owner-1")))

	now := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := s.store.Execute(s.ctx, "inst-1",
		func(r *models.InstanceRecord) error { return r.CanDeactivate() },
		func(r *models.InstanceRecord) { r.ApplyDeactivation(now) },
	)
	s.Require().NoError(err)
	s.Equal(models.RecordStatusInactive, updated.Status)

	found, err := s.store.Find(s.ctx, "inst-1")
	s.Require().NoError(err)
	s.Equal(models.RecordStatusInactive, found.Status)
}

func (s *PostgresRecordSuite) TestExecuteRollsBackOnValidationFailure() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-1", "owner-1")))

	failure := sentinel.ErrInvalidState
	_, err := s.store.Execute(s.ctx, "inst-1",
		func(*models.InstanceRecord) error { return failure },
		func(r *models.InstanceRecord) { r.Status = models.RecordStatusInactive },
	)
	s.Require().ErrorIs(err, failure)

	found, err := s.store.Find(s.ctx, "inst-1")
	s.Require().NoError(err)
	s.Equal(models.RecordStatusActive, found.Status)
}

// TestConcurrentDeactivation verifies the row lock serializes updates:
// exactly one of many concurrent deactivations wins.
func (s *PostgresRecordSuite) TestConcurrentDeactivation() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-1", "owner-1")))

	const goroutines = 20
	var wg sync.WaitGroup
	var successes atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(s.ctx, "inst-1",
				func(r *models.InstanceRecord) error { return r.CanDeactivate() },
				func(r *models.InstanceRecord) { r.ApplyDeactivation(time.Now().UTC()) },
			)
			if err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
}
