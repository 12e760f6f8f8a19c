package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
	"hatchery/pkg/platform/sentinel"
)

type RecordStoreSuite struct {
	suite.Suite
	store *InMemoryRecordStore
	ctx   context.Context
}

func (s *RecordStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestRecordStoreSuite(t *testing.T) {
	suite.Run(t, new(RecordStoreSuite))
}

func (s *RecordStoreSuite) newRecord(addr spawn.Address, owner spawn.Address) *models.InstanceRecord {
	record, err := models.NewInstanceRecord(
		spawn.ServiceInfo{Address: addr, CodeHash: "beef"},
		"label for "+string(addr),
		owner,
		time.Now(),
	)
	s.Require().NoError(err)
	return record
}

func (s *RecordStoreSuite) TestCreateAndFind() {
	s.Run("creates and finds a record", func() {
		record := s.newRecord("inst-1", "owner-1")
		s.Require().NoError(s.store.Create(s.ctx, record))

		found, err := s.store.Find(s.ctx, "inst-1")
		s.Require().NoError(err)
		s.Equal(record.Label, found.Label)
		s.Equal(models.RecordStatusActive, found.Status)
	})

	s.Run("rejects duplicate address", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-dup", "owner-1")))
		err := s.store.Create(s.ctx, s.newRecord("inst-dup", "owner-2"))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("returns ErrNotFound for unknown address", func() {
		_, err := s.store.Find(s.ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("mutating a found record does not touch the store", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-iso", "owner-1")))

		found, err := s.store.Find(s.ctx, "inst-iso")
		s.Require().NoError(err)
		found.Label = "tampered"

		again, err := s.store.Find(s.ctx, "inst-iso")
		s.Require().NoError(err)
		s.NotEqual("tampered", again.Label)
	})
}

func (s *RecordStoreSuite) TestFindMany() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-a", "owner-1")))
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-b", "owner-1")))
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-c", "owner-2")))

	s.Run("returns records in input order", func() {
		records, err := s.store.FindMany(s.ctx, []spawn.Address{"inst-c", "inst-a"})
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal(spawn.Address("inst-c"), records[0].Identity.Address)
		s.Equal(spawn.Address("inst-a"), records[1].Identity.Address)
	})

	s.Run("a missing address fails the whole call", func() {
		_, err := s.store.FindMany(s.ctx, []spawn.Address{"inst-a", "hole"})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("empty input yields empty output", func() {
		records, err := s.store.FindMany(s.ctx, nil)
		s.Require().NoError(err)
		s.Empty(records)
	})
}

func (s *RecordStoreSuite) TestExecute() {
	s.Run("validation failure leaves the record untouched", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-1", "owner-1")))

		_, err := s.store.Execute(s.ctx, "inst-1",
			func(r *models.InstanceRecord) error { return sentinel.ErrInvalidState },
			func(r *models.InstanceRecord) { r.ApplyDeactivation(time.Now()) },
		)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.Find(s.ctx, "inst-1")
		s.Require().NoError(err)
		s.Equal(models.RecordStatusActive, found.Status)
	})

	s.Run("mutation persists on success", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord("inst-2", "owner-1")))

		updated, err := s.store.Execute(s.ctx, "inst-2",
			func(r *models.InstanceRecord) error { return r.CanDeactivate() },
			func(r *models.InstanceRecord) { r.ApplyDeactivation(time.Now()) },
		)
		s.Require().NoError(err)
		s.Equal(models.RecordStatusInactive, updated.Status)

		found, err := s.store.Find(s.ctx, "inst-2")
		s.Require().NoError(err)
		s.Equal(models.RecordStatusInactive, found.Status)
	})

	s.Run("unknown address returns ErrNotFound", func() {
		_, err := s.store.Execute(s.ctx, "missing",
			func(r *models.InstanceRecord) error { return nil },
			func(r *models.InstanceRecord) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
