package stream

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/storage"
)

func collectEvents(t *testing.T, sub *Subscription, want int) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), want)
		}
	}
	return events
}

func TestBrokerDeliversInPublishOrder(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	sub := broker.Subscribe(jobID)
	defer sub.Cancel()

	broker.Publish(jobID, StatusEvent(storage.JobStatusQueued, 0))
	broker.Publish(jobID, StatusEvent(storage.JobStatusExtracting, 0))
	broker.Publish(jobID, CardEvent(storage.Card{Seq: 0, Question: "q", Answer: "a"}))
	broker.Publish(jobID, CompleteEvent(1))

	events := collectEvents(t, sub, 4)
	require.Len(t, events, 4)
	assert.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, EventStatus, events[1].Type)
	assert.Equal(t, EventCard, events[2].Type)
	assert.Equal(t, EventComplete, events[3].Type)

	for i, event := range events {
		assert.Equal(t, int64(i+1), event.Seq)
	}
}

func TestBrokerReplaysHistoryToLateSubscriber(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	broker.Publish(jobID, StatusEvent(storage.JobStatusGenerating, 10))
	broker.Publish(jobID, CardEvent(storage.Card{Seq: 0, Question: "q1", Answer: "a1"}))
	broker.Publish(jobID, CardEvent(storage.Card{Seq: 1, Question: "q2", Answer: "a2"}))

	sub := broker.Subscribe(jobID)
	defer sub.Cancel()

	// Replay first, then live events, with no gap or duplication.
	broker.Publish(jobID, CompleteEvent(2))

	events := collectEvents(t, sub, 4)
	require.Len(t, events, 4)
	for i, event := range events {
		assert.Equal(t, int64(i+1), event.Seq)
	}
	assert.Equal(t, EventComplete, events[3].Type)
}

func TestBrokerTerminalEventClosesStream(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	sub := broker.Subscribe(jobID)
	broker.Publish(jobID, ErrorEvent("GenerationFailed", "nothing usable"))

	events := collectEvents(t, sub, 1)
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal())

	select {
	case _, open := <-sub.Events:
		assert.False(t, open, "stream should be closed after terminal event")
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after terminal event")
	}
}

func TestBrokerDropsPublishAfterTerminal(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	broker.Publish(jobID, CompleteEvent(0))
	broker.Publish(jobID, CardEvent(storage.Card{Seq: 0}))

	sub := broker.Subscribe(jobID)
	defer sub.Cancel()

	events := collectEvents(t, sub, 1)
	require.Len(t, events, 1)
	assert.Equal(t, EventComplete, events[0].Type)

	_, open := <-sub.Events
	assert.False(t, open)
}

func TestBrokerSubscribeAfterTerminalGetsFullReplay(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	broker.Publish(jobID, StatusEvent(storage.JobStatusGenerating, 50))
	broker.Publish(jobID, CardEvent(storage.Card{Seq: 0, Question: "q", Answer: "a"}))
	broker.Publish(jobID, CompleteEvent(1))

	sub := broker.Subscribe(jobID)
	events := collectEvents(t, sub, 3)
	require.Len(t, events, 3)
	assert.Equal(t, EventComplete, events[2].Type)
}

func TestBrokerSeedReconstructsFinishedStream(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	assert.False(t, broker.Known(jobID))
	broker.Seed(jobID, []Event{
		StatusEvent(storage.JobStatusQueued, 0),
		CardEvent(storage.Card{Seq: 0, Question: "q", Answer: "a"}),
		CompleteEvent(1),
	})
	assert.True(t, broker.Known(jobID))

	sub := broker.Subscribe(jobID)
	events := collectEvents(t, sub, 3)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[2].Seq)
}

func TestBrokerSeedDoesNotOverwriteLiveStream(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	broker.Publish(jobID, StatusEvent(storage.JobStatusQueued, 0))
	broker.Seed(jobID, []Event{CompleteEvent(99)})

	sub := broker.Subscribe(jobID)
	defer sub.Cancel()
	events := collectEvents(t, sub, 1)
	assert.Equal(t, EventStatus, events[0].Type)
}

func TestBrokerDropEndsStreamWithDeletedEvent(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	sub := broker.Subscribe(jobID)
	broker.Publish(jobID, StatusEvent(storage.JobStatusGenerating, 20))
	broker.Drop(jobID)

	events := collectEvents(t, sub, 2)
	require.Len(t, events, 2)
	last := events[1]
	assert.True(t, last.Terminal())
	assert.Equal(t, EventError, last.Type)
	data, ok := last.Data.(ErrorData)
	require.True(t, ok)
	assert.Equal(t, string(domain.KindDeckDeleted), data.Kind)

	select {
	case _, open := <-sub.Events:
		assert.False(t, open, "stream should be closed after drop")
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not disconnected on drop")
	}
	assert.False(t, broker.Known(jobID))
}

func TestBrokerDropAfterTerminalAddsNoEvent(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobID := uuid.New()

	sub := broker.Subscribe(jobID)
	broker.Publish(jobID, CompleteEvent(0))
	broker.Drop(jobID)

	// The complete event stays the one and only terminal entry.
	events := collectEvents(t, sub, 2)
	require.Len(t, events, 1)
	assert.Equal(t, EventComplete, events[0].Type)
}

func TestBrokerIndependentJobsDoNotInterleave(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	jobA := uuid.New()
	jobB := uuid.New()

	subA := broker.Subscribe(jobA)
	defer subA.Cancel()

	broker.Publish(jobB, CardEvent(storage.Card{Seq: 0}))
	broker.Publish(jobA, StatusEvent(storage.JobStatusQueued, 0))

	events := collectEvents(t, subA, 1)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, int64(1), events[0].Seq)
}

func TestSubscriptionCancelIsIdempotent(t *testing.T) {
	broker := NewBroker(observability.NopLogger())
	sub := broker.Subscribe(uuid.New())
	sub.Cancel()
	sub.Cancel()
}
