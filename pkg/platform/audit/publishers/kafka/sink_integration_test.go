//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/audit/publishers/kafka"
	"udyam/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
}

func (s *SinkSuite) TestPublishIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "audit-" + uuid.NewString()

	client, err := kafka.NewClient(s.kafka.Brokers, topic)
	s.Require().NoError(err)
	defer client.Close()
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic), "second call is a no-op")

	regID := uuid.New()
	sink := kafka.New(client, topic)
	s.Require().NoError(sink.Publish(ctx, audit.Event{
		ID:             uuid.New(),
		RegistrationID: regID,
		Action:         string(audit.EventOTPVerified),
		Category:       audit.CategoryCompliance,
		Timestamp:      time.Now(),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(regID.String(), string(records[0].Key))

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal("otp_verified", payload["action"])
}
