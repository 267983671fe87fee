// Package consumer reads audit events back off the Kafka topic written by the
// kafka sink and routes them by category.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"udyam/pkg/platform/audit/publishers/kafka"
)

// fetcher is the subset of *kgo.Client the consumer needs.
type fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
}

// Consumer polls the audit topic and hands each event to a Handler. Records
// that fail to decode are logged and skipped so one bad record cannot stall
// the partition.
type Consumer struct {
	client  fetcher
	handler Handler
	logger  *slog.Logger
	commit  bool
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCommit commits offsets after each handled batch. Leave it off for
// read-only tails that should not move a group forward.
func WithCommit() Option {
	return func(c *Consumer) {
		c.commit = true
	}
}

func New(client fetcher, handler Handler, opts ...Option) *Consumer {
	c := &Consumer{
		client:  client,
		handler: handler,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient builds a franz-go client reading topic. An empty group reads the
// topic from the start without joining a consumer group.
func NewClient(brokers []string, topic, group string) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if group != "" {
		opts = append(opts, kgo.ConsumerGroup(group), kgo.DisableAutoCommit())
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

// Run polls until ctx is done or the client is closed. Handler errors are
// logged; the record is not retried.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.WarnContext(ctx, "audit fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.process(ctx, record)
		})
		if c.commit {
			if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
				c.logger.WarnContext(ctx, "audit offset commit failed", "error", err)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, record *kgo.Record) {
	event, err := kafka.Decode(record.Value)
	if err != nil {
		c.logger.WarnContext(ctx, "skipping undecodable audit record",
			"partition", record.Partition,
			"offset", record.Offset,
			"error", err,
		)
		return
	}
	if err := c.handler.Handle(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "audit handler failed",
			"action", event.Action,
			"event_id", event.ID,
			"error", err,
		)
	}
}
