//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/audit"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/config"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/testutil/containers"
)

const testTopic = "docid.rrid.audit.test"

type KafkaSinkSuite struct {
	suite.Suite
	sink     *audit.KafkaSink
	consumer *kgo.Client
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	redpanda := mgr.GetRedpanda(s.T())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.sink, err = audit.NewKafkaSink(config.Kafka{
		Brokers: []string{redpanda.Broker},
		Topic:   testTopic,
	}, logger)
	s.Require().NoError(err)
	s.Require().NotNil(s.sink)

	s.consumer, err = kgo.NewClient(
		kgo.SeedBrokers(redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
}

func (s *KafkaSinkSuite) TearDownSuite() {
	s.sink.Close()
	if s.consumer != nil {
		s.consumer.Close()
	}
}

func (s *KafkaSinkSuite) TestPublishDeliversEvent() {
	ctx := context.Background()
	event := audit.Event{
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Action:     audit.ActionAttach,
		ActorID:    "user-7",
		EntityType: "publication",
		EntityID:   42,
		Identifier: "RRID:SCR_003070",
	}
	s.sink.Publish(ctx, event)

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := s.consumer.PollFetches(pollCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)
	record := records[0]

	s.Equal("publication:42", string(record.Key))
	var got audit.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(audit.ActionAttach, got.Action)
	s.Equal("user-7", got.ActorID)
	s.Equal("RRID:SCR_003070", got.Identifier)
	s.Equal(int64(42), got.EntityID)
}
