// Package job owns the lifecycle of generation jobs: creation, state
// transitions, card appends, deck projections, and event fan-out. All
// writes for a given job are serialized through a per-job lock so status
// transitions, card ordering, and stream publishes stay consistent.
package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/storage"
	"github.com/flashmind/card-engine/internal/stream"
)

// JobStore is the persistence surface the manager needs for jobs.
type JobStore interface {
	Create(ctx context.Context, job *storage.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Job, error)
	List(ctx context.Context, owner string) ([]*storage.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status storage.JobStatus, errorKind, errorMessage string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CardStore is the persistence surface the manager needs for cards.
type CardStore interface {
	Append(ctx context.Context, card *storage.Card) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]storage.Card, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)
}

// Manager coordinates job state across storage and the event stream.
type Manager struct {
	jobs   JobStore
	cards  CardStore
	broker *stream.Broker
	logger *observability.Logger

	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewManager creates a job manager.
func NewManager(jobs JobStore, cards CardStore, broker *stream.Broker, logger *observability.Logger) *Manager {
	return &Manager{
		jobs:    jobs,
		cards:   cards,
		broker:  broker,
		logger:  logger.WithComponent("job"),
		locks:   make(map[uuid.UUID]*sync.Mutex),
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// lockFor returns the mutex serializing writes to one job.
func (m *Manager) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// forget drops the per-job bookkeeping once a job can no longer change.
func (m *Manager) forget(id uuid.UUID) {
	m.mu.Lock()
	delete(m.locks, id)
	delete(m.cancels, id)
	m.mu.Unlock()
}

// CreateJob records a new queued job for an uploaded document and emits
// the initial status event. The job id doubles as the deck id.
func (m *Manager) CreateJob(ctx context.Context, owner, filename string) (*storage.Job, error) {
	job := &storage.Job{
		ID:         uuid.New(),
		Owner:      owner,
		Title:      "Deck: " + filename,
		SourceFile: filename,
		Status:     storage.JobStatusQueued,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	m.broker.Publish(job.ID, stream.StatusEvent(job.Status, 0))
	m.logger.Info().
		Str("job_id", job.ID.String()).
		Str("owner", owner).
		Str("source_file", filename).
		Msg("job created")
	return job, nil
}

// RegisterCancel associates the running worker's cancel func with the job
// so deck deletion can stop in-flight generation.
func (m *Manager) RegisterCancel(id uuid.UUID, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
}

// SetStatus transitions a job to a non-terminal status and emits the
// matching status event. Transitions out of a terminal status are
// rejected with ErrTerminalState.
func (m *Manager) SetStatus(ctx context.Context, id uuid.UUID, status storage.JobStatus, progress int) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrTerminalState
	}

	if err := m.jobs.UpdateStatus(ctx, id, status, "", ""); err != nil {
		return err
	}
	if err := m.jobs.UpdateProgress(ctx, id, progress); err != nil {
		return err
	}

	m.broker.Publish(id, stream.StatusEvent(status, progress))
	return nil
}

// SetProgress updates progress within the current status and emits a
// status event. No-op once the job is terminal.
func (m *Manager) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrTerminalState
	}

	if err := m.jobs.UpdateProgress(ctx, id, progress); err != nil {
		return err
	}
	m.broker.Publish(id, stream.StatusEvent(job.Status, progress))
	return nil
}

// AppendCard persists a card at the next sequence index and emits a card
// event. Appending to a deleted job is a logged no-op so a worker racing
// a deletion fails softly.
func (m *Manager) AppendCard(ctx context.Context, id uuid.UUID, question, answer string) (*storage.Card, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			m.logger.Info().Str("job_id", id.String()).Msg("append to deleted job ignored")
			return nil, nil
		}
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, domain.ErrTerminalState
	}

	seq, err := m.cards.CountByJob(ctx, id)
	if err != nil {
		return nil, err
	}

	card := &storage.Card{
		ID:       uuid.New(),
		JobID:    id,
		Seq:      seq,
		Question: question,
		Answer:   answer,
	}
	if err := m.cards.Append(ctx, card); err != nil {
		return nil, err
	}

	m.broker.Publish(id, stream.CardEvent(*card))
	return card, nil
}

// Complete marks a job completed at 100% and emits the terminal complete
// event. Exactly one terminal transition wins; later ones get
// ErrTerminalState.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrTerminalState
	}

	if err := m.jobs.UpdateStatus(ctx, id, storage.JobStatusCompleted, "", ""); err != nil {
		return err
	}
	if err := m.jobs.UpdateProgress(ctx, id, 100); err != nil {
		return err
	}

	total, err := m.cards.CountByJob(ctx, id)
	if err != nil {
		return err
	}

	m.broker.Publish(id, stream.StatusEvent(storage.JobStatusCompleted, 100))
	m.broker.Publish(id, stream.CompleteEvent(total))
	m.logger.Info().
		Str("job_id", id.String()).
		Int("total_cards", total).
		Msg("job completed")

	m.forget(id)
	return nil
}

// Fail marks a job failed with an error kind and message and emits the
// terminal error event. Exactly one terminal transition wins.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			// Job was deleted mid-run; nothing to report failure against.
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrTerminalState
	}

	if err := m.jobs.UpdateStatus(ctx, id, storage.JobStatusError, string(kind), message); err != nil {
		return err
	}

	m.broker.Publish(id, stream.StatusEvent(storage.JobStatusError, job.Progress))
	m.broker.Publish(id, stream.ErrorEvent(string(kind), message))
	m.logger.Warn().
		Str("job_id", id.String()).
		Str("error_kind", string(kind)).
		Str("error_message", message).
		Msg("job failed")

	m.forget(id)
	return nil
}

// GetJob returns the current job record.
func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*storage.Job, error) {
	return m.jobs.GetByID(ctx, id)
}

// CardCount returns how many cards a job has so far.
func (m *Manager) CardCount(ctx context.Context, id uuid.UUID) (int, error) {
	return m.cards.CountByJob(ctx, id)
}

// ListDecks returns deck summaries for an owner, newest first. Decks for
// unfinished jobs appear with their in-flight status.
func (m *Manager) ListDecks(ctx context.Context, owner string) ([]storage.DeckSummary, error) {
	jobs, err := m.jobs.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	summaries := make([]storage.DeckSummary, 0, len(jobs))
	for _, job := range jobs {
		count, err := m.cards.CountByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, storage.DeckSummary{
			ID:        job.ID,
			Title:     job.Title,
			Status:    job.Status,
			CardCount: count,
			CreatedAt: job.CreatedAt,
		})
	}
	return summaries, nil
}

// GetDeck returns the deck detail projection: the job plus its cards in
// generation order.
func (m *Manager) GetDeck(ctx context.Context, id uuid.UUID) (*storage.Deck, error) {
	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cards, err := m.cards.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []storage.Card{}
	}
	return &storage.Deck{
		ID:        job.ID,
		Title:     job.Title,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		Cards:     cards,
	}, nil
}

// DeleteDeck removes a deck and its cards, cancels any in-flight worker,
// and ends the job's event stream. A stream that has not yet reached its
// terminal event gets a deck-deleted error event as it is torn down.
func (m *Manager) DeleteDeck(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	cancel, running := m.cancels[id]
	m.mu.Unlock()
	if running {
		cancel()
	}

	lock := m.lockFor(id)
	lock.Lock()
	err := m.jobs.Delete(ctx, id)
	lock.Unlock()
	if err != nil {
		return err
	}

	m.broker.Drop(id)
	m.forget(id)
	m.logger.Info().Str("job_id", id.String()).Msg("deck deleted")
	return nil
}

// SubscribeEvents attaches to a job's event stream. For a job from a
// previous process lifetime the stream is reconstructed from storage, so
// the subscriber still gets the full ordered replay.
func (m *Manager) SubscribeEvents(ctx context.Context, id uuid.UUID) (*stream.Subscription, error) {
	if !m.broker.Known(id) {
		if err := m.seedFromStorage(ctx, id); err != nil {
			return nil, err
		}
	}
	return m.broker.Subscribe(id), nil
}

// seedFromStorage reconstructs a job's stream from storage. The broker
// only forgets streams across restarts, so a job found non-terminal here
// has no worker left to finish it; it is settled as interrupted so the
// rebuilt stream ends with a terminal event instead of hanging open.
func (m *Manager) seedFromStorage(ctx context.Context, id uuid.UUID) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		const message = "generation was interrupted before finishing"
		if err := m.jobs.UpdateStatus(ctx, id, storage.JobStatusError, string(domain.KindInterrupted), message); err != nil {
			return err
		}
		job.Status = storage.JobStatusError
		job.ErrorKind = string(domain.KindInterrupted)
		job.ErrorMessage = message
		m.logger.Warn().
			Str("job_id", id.String()).
			Msg("settled interrupted job from a previous run")
	}

	history, err := m.rebuildHistory(ctx, job)
	if err != nil {
		return err
	}
	m.broker.Seed(id, history)
	return nil
}

// rebuildHistory synthesizes the event sequence for a job whose live
// stream is gone: one status event per recorded state, each card in seq
// order, and the terminal event if the job reached one.
func (m *Manager) rebuildHistory(ctx context.Context, job *storage.Job) ([]stream.Event, error) {
	cards, err := m.cards.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	var history []stream.Event
	history = append(history, stream.StatusEvent(storage.JobStatusQueued, 0))
	if job.Status != storage.JobStatusQueued {
		history = append(history, stream.StatusEvent(storage.JobStatusExtracting, 0))
		history = append(history, stream.StatusEvent(storage.JobStatusGenerating, 10))
	}
	for _, card := range cards {
		history = append(history, stream.CardEvent(card))
	}

	switch job.Status {
	case storage.JobStatusCompleted:
		history = append(history, stream.StatusEvent(storage.JobStatusCompleted, 100))
		history = append(history, stream.CompleteEvent(len(cards)))
	case storage.JobStatusError:
		history = append(history, stream.StatusEvent(storage.JobStatusError, job.Progress))
		history = append(history, stream.ErrorEvent(job.ErrorKind, job.ErrorMessage))
	}
	return history, nil
}
