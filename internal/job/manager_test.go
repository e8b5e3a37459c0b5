package job

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/storage"
	"github.com/flashmind/card-engine/internal/stream"
)

// memJobStore is an in-memory JobStore for tests.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]storage.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]storage.Job)}
}

func (s *memJobStore) Create(_ context.Context, job *storage.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) GetByID(_ context.Context, id uuid.UUID) (*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := job
	return &copied, nil
}

func (s *memJobStore) List(_ context.Context, owner string) ([]*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Job
	for _, job := range s.jobs {
		if job.Owner == owner {
			copied := job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memJobStore) UpdateStatus(_ context.Context, id uuid.UUID, status storage.JobStatus, errorKind, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	job.ErrorKind = errorKind
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return nil
}

func (s *memJobStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Progress = progress
	s.jobs[id] = job
	return nil
}

func (s *memJobStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// memCardStore is an in-memory CardStore for tests.
type memCardStore struct {
	mu    sync.Mutex
	cards map[uuid.UUID][]storage.Card
}

func newMemCardStore() *memCardStore {
	return &memCardStore{cards: make(map[uuid.UUID][]storage.Card)}
}

func (s *memCardStore) Append(_ context.Context, card *storage.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	card.CreatedAt = time.Now().UTC()
	s.cards[card.JobID] = append(s.cards[card.JobID], *card)
	return nil
}

func (s *memCardStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]storage.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Card, len(s.cards[jobID]))
	copy(out, s.cards[jobID])
	return out, nil
}

func (s *memCardStore) CountByJob(_ context.Context, jobID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards[jobID]), nil
}

func newTestManager() (*Manager, *memJobStore, *memCardStore, *stream.Broker) {
	jobs := newMemJobStore()
	cards := newMemCardStore()
	broker := stream.NewBroker(observability.NopLogger())
	manager := NewManager(jobs, cards, broker, observability.NopLogger())
	return manager, jobs, cards, broker
}

func TestCreateJobTitlesDeckAfterFile(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Deck: notes.pdf", created.Title)
	assert.Equal(t, storage.JobStatusQueued, created.Status)
	assert.Equal(t, "alice", created.Owner)
	assert.NotEqual(t, uuid.Nil, created.ID)
}

func TestAppendCardAssignsSequentialSeq(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, manager.SetStatus(ctx, created.ID, storage.JobStatusGenerating, 10))

	for i := 0; i < 3; i++ {
		card, err := manager.AppendCard(ctx, created.ID, "question number "+string(rune('a'+i))+"?", "an answer")
		require.NoError(t, err)
		require.NotNil(t, card)
		assert.Equal(t, i, card.Seq)
	}
}

func TestAppendCardToDeletedJobIsNoOp(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, manager.DeleteDeck(ctx, created.ID))

	card, err := manager.AppendCard(ctx, created.ID, "orphan question?", "orphan answer")
	require.NoError(t, err)
	assert.Nil(t, card)
}

func TestExactlyOneTerminalTransition(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)

	require.NoError(t, manager.Complete(ctx, created.ID))

	err = manager.Fail(ctx, created.ID, domain.KindGenerationFailed, "too late")
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	err = manager.Complete(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	err = manager.SetStatus(ctx, created.ID, storage.JobStatusGenerating, 50)
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	record, err := manager.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)
}

func TestFailRecordsErrorKind(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, manager.Fail(ctx, created.ID, domain.KindCorruptDocument, "unreadable"))

	record, err := manager.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusError, record.Status)
	assert.Equal(t, string(domain.KindCorruptDocument), record.ErrorKind)
	assert.Equal(t, "unreadable", record.ErrorMessage)
}

func TestListDecksScopedToOwnerNewestFirst(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	first, err := manager.CreateJob(ctx, "alice", "one.txt")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := manager.CreateJob(ctx, "alice", "two.txt")
	require.NoError(t, err)
	_, err = manager.CreateJob(ctx, "bob", "three.txt")
	require.NoError(t, err)

	decks, err := manager.ListDecks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, decks, 2)
	assert.Equal(t, second.ID, decks[0].ID)
	assert.Equal(t, first.ID, decks[1].ID)
}

func TestGetDeckReturnsCardsInOrder(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, manager.SetStatus(ctx, created.ID, storage.JobStatusGenerating, 10))

	_, err = manager.AppendCard(ctx, created.ID, "first question?", "first answer")
	require.NoError(t, err)
	_, err = manager.AppendCard(ctx, created.ID, "second question?", "second answer")
	require.NoError(t, err)
	require.NoError(t, manager.Complete(ctx, created.ID))

	deck, err := manager.GetDeck(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, deck.Cards, 2)
	assert.Equal(t, 0, deck.Cards[0].Seq)
	assert.Equal(t, "first question?", deck.Cards[0].Question)
	assert.Equal(t, 1, deck.Cards[1].Seq)
}

func TestGetDeckMissingIsNotFound(t *testing.T) {
	manager, _, _, _ := newTestManager()

	_, err := manager.GetDeck(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteDeckCancelsRunningWorker(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)

	workerCtx, cancel := context.WithCancel(context.Background())
	manager.RegisterCancel(created.ID, cancel)

	require.NoError(t, manager.DeleteDeck(ctx, created.ID))

	select {
	case <-workerCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("worker context not canceled on deck deletion")
	}

	_, err = manager.GetJob(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteDeckEndsStreamWithDeletedEvent(t *testing.T) {
	manager, _, _, _ := newTestManager()
	ctx := context.Background()

	created, err := manager.CreateJob(ctx, "alice", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, manager.SetStatus(ctx, created.ID, storage.JobStatusGenerating, 20))

	sub, err := manager.SubscribeEvents(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, manager.DeleteDeck(ctx, created.ID))

	var events []stream.Event
	for event := range sub.Events {
		events = append(events, event)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.True(t, last.Terminal(), "stream ended without a terminal event after deck deletion")
	require.Equal(t, stream.EventError, last.Type)
	data, ok := last.Data.(stream.ErrorData)
	require.True(t, ok)
	assert.Equal(t, string(domain.KindDeckDeleted), data.Kind)
}

func TestSubscribeEventsSettlesOrphanedJob(t *testing.T) {
	// A job left mid-generation by a previous run has no worker that could
	// still finish it; subscribing must end with a terminal event anyway.
	jobs := newMemJobStore()
	cards := newMemCardStore()
	ctx := context.Background()

	jobID := uuid.New()
	require.NoError(t, jobs.Create(ctx, &storage.Job{
		ID:     jobID,
		Owner:  "alice",
		Title:  "Deck: stale.txt",
		Status: storage.JobStatusGenerating,
	}))
	require.NoError(t, jobs.UpdateProgress(ctx, jobID, 40))
	require.NoError(t, cards.Append(ctx, &storage.Card{ID: uuid.New(), JobID: jobID, Seq: 0, Question: "q?", Answer: "a"}))

	broker := stream.NewBroker(observability.NopLogger())
	manager := NewManager(jobs, cards, broker, observability.NopLogger())

	sub, err := manager.SubscribeEvents(ctx, jobID)
	require.NoError(t, err)

	var events []stream.Event
	for event := range sub.Events {
		events = append(events, event)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	data, ok := last.Data.(stream.ErrorData)
	require.True(t, ok)
	assert.Equal(t, string(domain.KindInterrupted), data.Kind)

	record, err := manager.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusError, record.Status)
	assert.Equal(t, string(domain.KindInterrupted), record.ErrorKind)
}

func TestSubscribeEventsRebuildsFinishedJobHistory(t *testing.T) {
	// Simulates a subscriber attaching after a restart: the job is in
	// storage but the broker has no live stream for it.
	jobs := newMemJobStore()
	cards := newMemCardStore()
	ctx := context.Background()

	jobID := uuid.New()
	require.NoError(t, jobs.Create(ctx, &storage.Job{
		ID:     jobID,
		Owner:  "alice",
		Title:  "Deck: old.txt",
		Status: storage.JobStatusCompleted,
	}))
	require.NoError(t, jobs.UpdateStatus(ctx, jobID, storage.JobStatusCompleted, "", ""))
	require.NoError(t, cards.Append(ctx, &storage.Card{ID: uuid.New(), JobID: jobID, Seq: 0, Question: "q?", Answer: "a"}))

	broker := stream.NewBroker(observability.NopLogger())
	manager := NewManager(jobs, cards, broker, observability.NopLogger())

	sub, err := manager.SubscribeEvents(ctx, jobID)
	require.NoError(t, err)

	var events []stream.Event
	for event := range sub.Events {
		events = append(events, event)
	}
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, stream.EventComplete, last.Type)

	var sawCard bool
	for _, event := range events {
		if event.Type == stream.EventCard {
			sawCard = true
		}
	}
	assert.True(t, sawCard)
}

func TestSubscribeEventsUnknownJobIsNotFound(t *testing.T) {
	manager, _, _, _ := newTestManager()

	_, err := manager.SubscribeEvents(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
