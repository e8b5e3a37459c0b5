package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/observability"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// cannot drain card or terminal events within this slack is disconnected
// rather than allowed to stall the stream.
const subscriberBuffer = 64

// Subscription is one attached consumer of a job's event stream. Events
// arrives in publish order and is closed after the terminal event (or on
// Cancel, or if the consumer falls too far behind).
type Subscription struct {
	Events <-chan Event
	hub    *hub
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.ch)
		close(s.done)
	})
}

// Broker owns one event hub per job. Publishing for a given job must be
// serialized by the caller; subscribing is safe from any goroutine.
type Broker struct {
	mu     sync.Mutex
	hubs   map[uuid.UUID]*hub
	logger *observability.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *observability.Logger) *Broker {
	return &Broker{
		hubs:   make(map[uuid.UUID]*hub),
		logger: logger.WithComponent("stream"),
	}
}

// Publish appends an event to the job's stream, assigning its sequence
// number, and fans it out. A terminal event closes the stream; later
// publishes to the same job are dropped.
func (b *Broker) Publish(jobID uuid.UUID, event Event) {
	b.getHub(jobID).publish(event, b.logger)
}

// Subscribe attaches to the job's stream. The returned subscription first
// receives every prior event in order, then live events; there is no gap
// or duplication between replay and live delivery.
func (b *Broker) Subscribe(jobID uuid.UUID) *Subscription {
	return b.getHub(jobID).subscribe()
}

// Known reports whether the broker holds a stream for the job. Streams
// exist only for jobs started in this process lifetime.
func (b *Broker) Known(jobID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.hubs[jobID]
	return ok
}

// Seed creates the job's stream pre-populated with the given history.
// Used when replaying a finished job to a subscriber; no-op if the
// stream already exists.
func (b *Broker) Seed(jobID uuid.UUID, history []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.hubs[jobID]; ok {
		return
	}
	h := newHub()
	for _, event := range history {
		h.nextSeq++
		event.Seq = h.nextSeq
		h.history = append(h.history, event)
		if event.Terminal() {
			h.closed = true
		}
	}
	b.hubs[jobID] = h
}

// Drop ends the job's stream and discards it. Called when a deck is
// deleted: a stream still open gets a deck-deleted error event as its
// terminal entry, so subscribers see a defined end rather than a bare
// disconnect.
func (b *Broker) Drop(jobID uuid.UUID) {
	b.mu.Lock()
	h, ok := b.hubs[jobID]
	delete(b.hubs, jobID)
	b.mu.Unlock()

	if ok {
		h.drop(ErrorEvent(string(domain.KindDeckDeleted), "deck was deleted"))
	}
}

func (b *Broker) getHub(jobID uuid.UUID) *hub {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hubs[jobID]
	if !ok {
		h = newHub()
		b.hubs[jobID] = h
	}
	return h
}

// hub is the stream state for one job: full event history plus the set of
// live subscriber channels.
type hub struct {
	mu      sync.Mutex
	nextSeq int64
	history []Event
	subs    map[chan Event]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) publish(event Event, logger *observability.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		logger.Warn().Str("event_type", string(event.Type)).Msg("event published after terminal event, dropping")
		return
	}

	h.nextSeq++
	event.Seq = h.nextSeq
	h.history = append(h.history, event)

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Status events are progress hints and may be skipped for a
			// slow consumer. Card and terminal events must not be, so a
			// consumer that cannot take them is cut off.
			if event.Type != EventStatus {
				delete(h.subs, ch)
				close(ch)
				logger.Warn().Msg("disconnected slow event subscriber")
			}
		}
	}

	if event.Terminal() {
		h.closed = true
		for ch := range h.subs {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// subscribe registers a consumer. History is copied and the channel
// registered under the same lock acquisition, so no published event can
// fall between replay and live delivery.
func (h *hub) subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	replay := make([]Event, len(h.history))
	copy(replay, h.history)
	closed := h.closed
	if !closed {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()

	out := make(chan Event, subscriberBuffer)
	sub := &Subscription{Events: out, hub: h, ch: ch, done: make(chan struct{})}

	// The pump decouples replay length from channel depth and lets a
	// canceled subscriber stop mid-replay without leaking this goroutine.
	go func() {
		defer close(out)
		for _, event := range replay {
			select {
			case out <- event:
			case <-sub.done:
				return
			}
		}
		if closed {
			return
		}
		for event := range ch {
			select {
			case out <- event:
			case <-sub.done:
				return
			}
		}
	}()

	return sub
}

func (h *hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// drop ends the stream. If no terminal event was published yet, terminal
// becomes the final entry; subscribers whose buffer cannot take it are
// simply closed, same as the slow-consumer cutoff.
func (h *hub) drop(terminal Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.closed {
		h.nextSeq++
		terminal.Seq = h.nextSeq
		h.history = append(h.history, terminal)
		for ch := range h.subs {
			select {
			case ch <- terminal:
			default:
			}
		}
		h.closed = true
	}

	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
