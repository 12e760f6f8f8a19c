//go:build integration

package audit_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hatchery/internal/audit"
	"hatchery/pkg/testutil/containers"
)

type PostgresTrailSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	db    *sql.DB
	store *audit.PostgresStore
}

func TestPostgresTrailSuite(t *testing.T) {
	suite.Run(t, new(PostgresTrailSuite))
}

func (s *PostgresTrailSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())

	db, err := audit.OpenPostgres(s.ctx, s.pg.URL)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresTrailSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *PostgresTrailSuite) SetupTest() {
	s.Require().NoError(s.pg.Reset(s.ctx))
	s.store = audit.NewPostgresStore(s.db)
}

func (s *PostgresTrailSuite) TestAppendAndListBySubject() {
	base := time.Now().UTC().Truncate(time.Microsecond)

	events := []audit.Event{
		{Timestamp: base, Action: audit.ActionInstanceCreated, Actor: "owner-1", Subject: "inst-1", Owner: "owner-1", Label: "counter"},
		{Timestamp: base.Add(time.Second), Action: audit.ActionInstanceRegistered, Subject: "inst-1", Owner: "owner-1"},
		{Timestamp: base.Add(2 * time.Second), Action: audit.ActionInstanceDeactivated, Actor: "inst-1", Subject: "inst-1", Owner: "owner-1"},
	}
	for _, event := range events {
		s.Require().NoError(s.store.Append(s.ctx, event))
	}
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Timestamp: base, Action: audit.ActionInstanceCreated, Subject: "inst-other",
	}))

	trail, err := s.store.ListBySubject(s.ctx, "inst-1")
	s.Require().NoError(err)
	s.Require().Len(trail, 3)
	for i, event := range trail {
		s.Equal(events[i].Action, event.Action)
		s.Equal(events[i].Owner, event.Owner)
		s.WithinDuration(events[i].Timestamp, event.Timestamp, time.Millisecond)
	}
}

func (s *PostgresTrailSuite) TestListUnknownSubjectIsEmpty() {
	trail, err := s.store.ListBySubject(s.ctx, "inst-missing")
	s.Require().NoError(err)
	s.Empty(trail)
}

func (s *PostgresTrailSuite) TestWorkerDrainsIntoPostgres() {
	inbox := make(chan audit.Event, 8)
	pub := audit.NewChannelPublisher(inbox)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go audit.NewWorker(s.store, inbox).Run(ctx)

	s.Require().NoError(pub.Emit(s.ctx, audit.Event{
		Action: audit.ActionViewingKeyWritten, Subject: "owner-keys",
	}))

	s.Require().Eventually(func() bool {
		trail, err := s.store.ListBySubject(s.ctx, "owner-keys")
		return err == nil && len(trail) == 1
	}, 5*time.Second, 20*time.Millisecond)
}
