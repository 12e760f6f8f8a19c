//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"hatchery/internal/audit"
	"hatchery/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	broker string
	ctx    context.Context
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
	s.ctx = context.Background()
}

func (s *KafkaPublisherSuite) TestEmitRoundTrip() {
	topic := "hatchery.audit.test"
	publisher, err := audit.NewKafkaPublisher(s.ctx, []string{s.broker}, audit.WithTopic(topic))
	s.Require().NoError(err)
	defer publisher.Close()

	event := audit.Event{
		Action:  audit.ActionInstanceRegistered,
		Actor:   "inst-1",
		Subject: "inst-1",
		Owner:   "owner-1",
		Label:   "one",
	}
	s.Require().NoError(publisher.Emit(s.ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("inst-1", string(records[0].Key))

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(audit.ActionInstanceRegistered, got.Action)
	s.Equal("owner-1", string(got.Owner))
	s.False(got.Timestamp.IsZero())
}

func (s *KafkaPublisherSuite) TestTopicCreationIsIdempotent() {
	topic := "hatchery.audit.idempotent"

	first, err := audit.NewKafkaPublisher(s.ctx, []string{s.broker}, audit.WithTopic(topic))
	s.Require().NoError(err)
	defer first.Close()

	second, err := audit.NewKafkaPublisher(s.ctx, []string{s.broker}, audit.WithTopic(topic))
	s.Require().NoError(err)
	defer second.Close()
}

func (s *KafkaPublisherSuite) TestNoBrokersRejected() {
	_, err := audit.NewKafkaPublisher(s.ctx, nil)
	s.Require().Error(err)
}
