package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/audit/store/memory"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	regID := uuid.New()
	err := pub.Emit(context.Background(), audit.Event{
		RegistrationID: regID,
		Action:         string(audit.EventOTPVerified),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), regID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventOTPVerified), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	regID := uuid.New()
	err := pub.Emit(context.Background(), audit.Event{
		RegistrationID: regID,
		Action:         string(audit.EventPANVerified),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), regID)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	regID := uuid.New()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			RegistrationID: regID,
			Action:         string(audit.EventOTPGenerated),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByRegistration(context.Background(), regID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventOTPGenerated)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventOTPGenerated)})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	regID := uuid.New()
	before := time.Now()
	err := pub.Emit(context.Background(), audit.Event{RegistrationID: regID, Action: string(audit.EventOTPGenerated)})
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), regID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.False(t, events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	regID := uuid.New()
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		RegistrationID: regID,
		Action:         string(audit.EventOTPGenerated),
		Timestamp:      customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), regID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_ForwardsToSinks(t *testing.T) {
	sink := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	pub := NewPublisher(memory.NewInMemoryStore(), WithSink(sink), WithSink(failing))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventRegistrationCompleted)})
	require.NoError(t, err, "sink failures do not fail the emit")
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, failing.count())
}

func TestPublisher_AsyncForwardsToSinks(t *testing.T) {
	sink := &recordingSink{}
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4), WithSink(sink))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: string(audit.EventOTPVerified)}))
	pub.Close()

	assert.Equal(t, 1, sink.count())
}
