// Package kafka forwards persisted audit events to a Kafka topic. The store
// stays the source of truth; the topic feeds downstream reporting, so a broker
// outage trips a breaker and events are skipped rather than queued.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/circuit"
)

// ErrCircuitOpen is returned by Publish while the breaker is open.
var ErrCircuitOpen = errors.New("audit kafka sink circuit open")

// producer is the subset of *kgo.Client the sink needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink implements audit.Sink.
type Sink struct {
	producer producer
	topic    string
	breaker  *circuit.Breaker
	metrics  *Metrics
	logger   *slog.Logger
	timeout  time.Duration
}

type Option func(*Sink)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPublishTimeout bounds each produce call.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(p producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer: p,
		topic:    topic,
		breaker:  circuit.New("audit-kafka", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient builds a franz-go client for the audit topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic with a single partition when it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	resp, err := kadm.NewClient(client).CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// message is the record value. Subject is already masked by the emitter.
type message struct {
	ID             string    `json:"id"`
	Category       string    `json:"category"`
	Timestamp      time.Time `json:"timestamp"`
	RegistrationID string    `json:"registration_id,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Action         string    `json:"action"`
	Decision       string    `json:"decision,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	ClientIP       string    `json:"client_ip,omitempty"`
	Device         string    `json:"device,omitempty"`
}

func encode(event audit.Event) ([]byte, error) {
	msg := message{
		ID:        event.ID.String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC(),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
		Device:    event.Device,
	}
	if event.RegistrationID != uuid.Nil {
		msg.RegistrationID = event.RegistrationID.String()
	}
	return json.Marshal(msg)
}

// Decode parses a record value written by Publish.
func Decode(value []byte) (audit.Event, error) {
	var msg message
	if err := json.Unmarshal(value, &msg); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit record: %w", err)
	}
	id, err := uuid.Parse(msg.ID)
	if err != nil {
		return audit.Event{}, fmt.Errorf("decode audit record id: %w", err)
	}
	event := audit.Event{
		ID:        id,
		Category:  audit.EventCategory(msg.Category),
		Timestamp: msg.Timestamp,
		Subject:   msg.Subject,
		Action:    msg.Action,
		Decision:  msg.Decision,
		Reason:    msg.Reason,
		RequestID: msg.RequestID,
		ClientIP:  msg.ClientIP,
		Device:    msg.Device,
	}
	if msg.RegistrationID != "" {
		if event.RegistrationID, err = uuid.Parse(msg.RegistrationID); err != nil {
			return audit.Event{}, fmt.Errorf("decode audit record registration: %w", err)
		}
	}
	return event, nil
}

// Publish produces one record keyed by registration so a registration's
// events stay ordered within a partition.
func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	if !s.breaker.Allow() {
		if s.metrics != nil {
			s.metrics.CircuitBreakerDropped.Inc()
		}
		return ErrCircuitOpen
	}

	value, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if event.RegistrationID != uuid.Nil {
		record.Key = []byte(event.RegistrationID.String())
	}

	produceCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.producer.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		_, change := s.breaker.RecordFailure()
		if s.metrics != nil {
			s.metrics.PublishFailures.Inc()
			if change.Opened {
				s.metrics.setBreakerState(true)
			}
		}
		if change.Opened {
			s.logger.WarnContext(ctx, "audit kafka sink circuit opened", "topic", s.topic, "error", err)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}

	_, change := s.breaker.RecordSuccess()
	if s.metrics != nil {
		s.metrics.Published.Inc()
		if change.Closed {
			s.metrics.setBreakerState(false)
		}
	}
	if change.Closed {
		s.logger.InfoContext(ctx, "audit kafka sink circuit closed", "topic", s.topic)
	}
	return nil
}
